// Package main provides the voicekey push-to-talk dictation CLI.
//
// Usage:
//
//	voicekey [flags] <command> [args]
//
// Commands:
//
//	record   - Run one push-to-talk dictation cycle
//	check    - Validate the configured credentials
//	devices  - List audio input devices
//	history  - Manage saved transcripts
//	config   - Manage CLI configuration contexts
//
// Configuration is stored in ~/.voicekey/ and supports multiple contexts.
package main

import (
	"fmt"
	"os"

	"github.com/voicekey/voicekey/cmd/voicekey/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
