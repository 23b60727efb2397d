package main

import (
	"os"

	cmd "github.com/mosaicnetworks/rtcsession/cmd/rtcsession/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.VersionCmd,
		cmd.NewResolveCmd(),
		cmd.NewConnectCmd())

	//Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
