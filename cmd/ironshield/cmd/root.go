package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ironshield",
	Short: "IronShield is an anti-forgery protection service",
	Long: `Signed, session-bound anti-forgery tokens with origin verification for
web applications. Complete documentation is available at
https://github.com/jmcleod/ironshield`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
