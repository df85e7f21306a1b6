// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package telnet

import "strings"

// ParseCommand splits a console line into a lowercased command and its
// argument.
func ParseCommand(input string) (cmd, arg string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ""
	}

	cmd, arg, _ = strings.Cut(input, " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}
