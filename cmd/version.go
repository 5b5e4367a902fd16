package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// GetVersion returns the current version information
func GetVersion() string {
	return version
}

// GetFullVersionInfo returns detailed version information
func GetFullVersionInfo() string {
	return fmt.Sprintf("Version: %s\nCommit: %s\nBuilt: %s", version, commit, date)
}

// GetVersionWithPrefix returns version with "nostr-client version: " prefix
func GetVersionWithPrefix() string {
	return fmt.Sprintf("nostr-client version: %s", version)
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of nostr-client",
		Long:  "Print the version number of nostr-client along with build information",
		Run: func(cmd *cobra.Command, args []string) {
			if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
				fmt.Println(GetFullVersionInfo())
			} else {
				fmt.Println(GetVersionWithPrefix())
			}
		},
	}
	cmd.Flags().BoolP("detailed", "d", false, "Show detailed version information")
	return cmd
}
