package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lattice-dev/lattice/internal/selector"
)

var flagStatusPool []string

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Return the highest-priority unclaimed task without claiming it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		pool := flagStatusPool
		if len(pool) == 0 {
			pool = selector.DefaultStatusPool
		}
		snap, err := a.sel.Next(a.resolveActor(flagActor), pool)
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim the highest-priority unclaimed task and move it in progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		pool := flagStatusPool
		if len(pool) == 0 {
			pool = selector.DefaultStatusPool
		}
		snap, err := a.sel.Claim(context.Background(), a.resolveActor(flagActor), pool)
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{nextCmd, claimCmd} {
		cmd.Flags().StringVar(&flagActor, "actor", "", "acting identity (default: $LATTICE_ACTOR or config default_actor)")
		cmd.Flags().StringSliceVar(&flagStatusPool, "status-pool", nil, "candidate statuses (default: backlog,planned)")
	}
}
