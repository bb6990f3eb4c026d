package main

import (
    "os"

    "github.com/spf13/cobra"
)

func main() {
    var cfgPath string

    root := &cobra.Command{
        Use:   "tokentap",
        Short: "Offline token transport over near-field, radio and visual-code channels",
    }
    root.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file")

    probe := &cobra.Command{
        Use:   "probe",
        Short: "List registered channels and their availability",
        RunE: func(cmd *cobra.Command, args []string) error {
            return runProbe(cfgPath)
        },
    }

    var medium string
    var message string
    loopback := &cobra.Command{
        Use:   "loopback",
        Short: "Run a full send/receive round trip over simulated hardware",
        RunE: func(cmd *cobra.Command, args []string) error {
            return runLoopback(cfgPath, medium, message)
        },
    }
    loopback.Flags().StringVar(&medium, "medium", "best", "Channel medium: near-field, radio, visual-code or best")
    loopback.Flags().StringVar(&message, "message", "cashuAeyJ0b2tlbiI6W119", "Token payload to move")

    root.AddCommand(probe, loopback)
    if err := root.Execute(); err != nil {
        os.Exit(1)
    }
}
