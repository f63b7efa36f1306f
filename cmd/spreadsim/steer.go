package main

import (
	"github.com/spf13/cobra"

	"spreadsim/internal/console"
)

var steerListenAddr string

var steerCmd = &cobra.Command{
	Use:   "steer",
	Short: "Open the interactive steering console",
	Long:  "steer listens for the simulation's control connection and sends steering commands on keypresses.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return console.Run(steerListenAddr)
	},
}

func init() {
	steerCmd.Flags().StringVar(&steerListenAddr, "listen", ":14000", "Address to listen on for the simulation")
}
