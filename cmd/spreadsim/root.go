package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "spreadsim",
	Short: "Stochastic spread simulation toolkit",
	Long:  "spreadsim runs steerable ensemble simulations of spatial spread and replays their statistics logs.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(steerCmd)
	rootCmd.AddCommand(replayCmd)
}
