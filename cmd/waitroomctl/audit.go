package main

import (
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	mongoadapter "github.com/robertarktes/virtual-waiting-room/internal/adapters/mongo"
	"github.com/robertarktes/virtual-waiting-room/internal/bootstrap"
	"github.com/spf13/cobra"
)

var historyLimit int64

var historyCmd = &cobra.Command{
	Use:   "history <queue-token|reservation-id>",
	Short: "Show the audit trail of a queue token or reservation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.MongoURI == "" {
			return errors.New("MONGO_URI is not set")
		}
		audit, closeFn, err := bootstrap.Mongo(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeFn()

		logs, err := audit.History(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), logs)
		return nil
	},
}

var outboxPendingCmd = &cobra.Command{
	Use:   "outbox-pending",
	Short: "Show how many outbox rows wait for the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.CRDBDSN == "" {
			return errors.New("CRDB_DSN is not set")
		}
		repo, closeFn, err := bootstrap.Postgres(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeFn()

		n, err := repo.CountPending(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pending\t%d\n", n)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int64Var(&historyLimit, "limit", 100, "maximum number of entries")
	rootCmd.AddCommand(historyCmd, outboxPendingCmd)
}

func printHistory(w io.Writer, logs []mongoadapter.AuditLog) {
	if len(logs) == 0 {
		fmt.Fprintln(w, "no audit entries")
		return
	}
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", l.Timestamp.Format(time.RFC3339), l.Action, l.EventID)
	}
}
