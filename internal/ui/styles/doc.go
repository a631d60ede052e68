// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling for the localchat window.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection.

# Color System (colors.go)

  - Purple - assistant lines, focused buttons
  - Cyan - brand color, user lines, labels
  - Emerald - ready status
  - Amber - busy status
  - Rose - errors

# Theme System (theme.go)

	theme := styles.NewTheme()
	if theme.IsDark {
		// Dark terminal detected
	}

# Spinners (animations.go)

	s := spinner.New(spinner.WithSpinner(styles.LineSpinner.Bubble()))
*/
package styles
