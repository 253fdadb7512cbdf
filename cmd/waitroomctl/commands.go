package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/robertarktes/virtual-waiting-room/internal/domain"
	"github.com/robertarktes/virtual-waiting-room/internal/queue"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <queue-token>",
	Short: "Show the state of a queue token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		view, err := e.service.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), view)
		return nil
	},
}

var depthCmd = &cobra.Command{
	Use:   "depth <event-id>",
	Short: "Show how many tokens wait for an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		n, err := e.service.Depth(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", args[0], n)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List events that have a waiting line",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		events, err := e.service.Events(cmd.Context())
		if err != nil {
			return err
		}
		sort.Strings(events)
		out := cmd.OutOrStdout()
		for _, id := range events {
			n, err := e.service.Depth(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\t%d\n", id, n)
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one admission sweep now",
	Long:  "Runs a single admission sweep. It is skipped if a scheduler currently holds the lease.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		report, err := e.scheduler.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, depthCmd, eventsCmd, sweepCmd)
}

func printStatus(w io.Writer, v domain.StatusView) {
	fmt.Fprintf(w, "Token:      %s\n", v.QueueToken)
	fmt.Fprintf(w, "State:      %s\n", v.State)
	if v.Position != nil {
		fmt.Fprintf(w, "Position:   %d\n", *v.Position)
	}
	if v.EstimatedWaitSec != nil {
		fmt.Fprintf(w, "Est. wait:  %ds\n", *v.EstimatedWaitSec)
	}
	if v.ExchangeToken != nil {
		fmt.Fprintf(w, "Exchange:   %s\n", *v.ExchangeToken)
	}
	fmt.Fprintf(w, "Expires in: %s\n", v.ExpiresIn.Round(time.Second))
}

func printReport(w io.Writer, r queue.SweepReport) {
	if r.Skipped != "" {
		fmt.Fprintf(w, "sweep skipped: %s\n", r.Skipped)
		return
	}
	fmt.Fprintf(w, "events=%d admitted=%d stale=%d failed=%d\n", r.Events, r.Admitted, r.Stale, r.Failed)
}
