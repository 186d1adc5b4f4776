package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/persistence"

	"github.com/spf13/cobra"
)

func newJournalCmd(a *app) *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Read the trade journal",
	}

	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List order intents that were never committed",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			if all, _ := cmd.Flags().GetBool("all"); all {
				date = ""
			} else if date == "" {
				date = a.today()
			} else if _, err := time.Parse(time.DateOnly, date); err != nil {
				return fmt.Errorf("invalid date format, use YYYY-MM-DD: %w", err)
			}

			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer database.Close()
			j := persistence.NewJournal(database)
			defer j.Close()

			intents, err := j.PendingIntents(cmd.Context(), date)
			if err != nil {
				return err
			}
			if len(intents) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending intents")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tSESSION\tSIDE\tSYMBOL\tSIGNAL\tCREATED")
			for _, in := range intents {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					in.ID, in.TradingDate, in.SessionName, in.Side, in.Symbol, in.SignalPrice,
					in.CreatedAt.In(a.cfg.Location).Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	pendingCmd.Flags().String("date", "", "Trading date YYYY-MM-DD (today if not provided)")
	pendingCmd.Flags().Bool("all", false, "List pending intents of every date")
	journalCmd.AddCommand(pendingCmd)

	return journalCmd
}
