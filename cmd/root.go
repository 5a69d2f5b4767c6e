// Package cmd wires the chatkit commands: the interactive storefront
// assistant (default), and version.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatkit",
	Short: "chatkit - terminal client for the storefront assistant",
	Long: `chatkit is a terminal client for the storefront assistant.

Ask about products, orders and returns in plain language; attach files to
your questions and page back through earlier conversations.

Running chatkit without arguments starts the interactive session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
