package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Show the session table and the next wake-up",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := a.now()
			sched := a.scheduler()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tREF\tWINDOW\tTARGET\tSTOP\tOPEN")
			for _, s := range a.table {
				fmt.Fprintf(w, "%d\t%s\t%02d:00\t%02d:00-%02d:00\t%s\t%s\t%t\n",
					s.ID, s.Name, s.RefHour, s.StartHour, s.EndHour, s.Target, s.Stop, s.Contains(now.Hour()))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			wake := sched.NextWakeDelay(now)
			fmt.Fprintf(cmd.OutOrStdout(), "\nnow %s (%s)\n", now.Format(time.DateTime), a.cfg.Timezone)
			fmt.Fprintf(cmd.OutOrStdout(), "weekend: %t\n", sched.InWeekend(now))
			fmt.Fprintf(cmd.OutOrStdout(), "next wake: %s (in %s)\n", now.Add(wake).Format(time.DateTime), wake.Round(time.Second))
			return nil
		},
	}
}
