package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "self21ctl",
	Short: "Build and publish self21 container images",
	Long: `Self21ctl builds and publishes container images of the self21 media server.

It clones (or updates) the upstream source checkout, builds the image with
build metadata baked in, optionally tags and pushes the result to a
registry, and can remove the checkout afterwards. Rerunning with the same
flags converges on the same outcome.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuild(cmd)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Runtime failures should not dump usage, but bad flags should.
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		cmd.Println(cmd.UsageString())
		return err
	})
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
