// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"
)

// validCommands lists every command name and alias Parse accepts.
var validCommands = []string{
	"run",
	"activate",
	"stop",
	"dismiss",
	"status",
	"watch",
	"audit",
	"settings",
	"pin",
	"config",
	"version",
	"help",
	// Aliases
	"daemon", // run
	"start",  // activate
	"lock",   // activate
	"unlock", // dismiss
	"s",      // status
}

// SuggestCommand returns the closest valid command to input, or "" when
// nothing is near enough.
func SuggestCommand(input string) string {
	input = strings.ToLower(input)
	if len(input) < 2 {
		return ""
	}

	// One edit for short words, two from four characters (catches
	// transpositions like "stpo"), three for long ones.
	maxDistance := 1
	if len(input) >= 4 {
		maxDistance = 2
	}
	if len(input) > 8 {
		maxDistance = 3
	}

	best, bestDistance := "", -1
	for _, cmd := range validCommands {
		d := levenshteinDistance(input, cmd)
		if d == 0 {
			return ""
		}
		if d <= maxDistance && (bestDistance == -1 || d < bestDistance) {
			best, bestDistance = cmd, d
		}
	}
	return best
}

// levenshteinDistance is the single-character edit distance between s1 and s2.
func levenshteinDistance(s1, s2 string) int {
	a, b := []rune(s1), []rune(s2)
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
