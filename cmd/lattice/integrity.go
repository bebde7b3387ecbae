package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var flagFix bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Scan every task for corruption or drift, optionally repairing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		findings, err := a.checker.Doctor(context.Background(), flagFix)
		if err != nil {
			return err
		}
		if len(findings) == 0 {
			fmt.Println("no findings")
			return nil
		}
		return printSnapshot(findings)
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&flagFix, "fix", false, "repair fixable findings instead of only reporting them")
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild [ID]",
	Short: "Rebuild a task's snapshot (or every task's) from its event log",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			n, err := a.checker.RebuildAll(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("rebuilt %d tasks\n", n)
			return nil
		}
		snap, err := a.checker.RebuildTask(args[0])
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	},
}
