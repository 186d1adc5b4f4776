package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStateCmd(a *app) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the persisted daily state",
	}

	stateCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the state document as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.stateManager().Store().Read()
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "no state file at %s\n", a.cfg.StatePath)
				return nil
			}
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	})

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Zero today's counters, levels and tracked trades",
		Long: `Resets the persisted DailyState to an empty one for today. Open positions
at the broker are not touched; only their tracking is dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errors.New("refusing to reset without --yes")
			}
			m := a.stateManager()
			if err := m.Load(a.today()); err != nil {
				return err
			}
			dropped := len(m.Current().ActiveTrades())
			m.Reset(a.today())
			if err := m.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state reset for %s (%d tracked trades dropped)\n", a.today(), dropped)
			return nil
		},
	}
	resetCmd.Flags().Bool("yes", false, "Confirm the reset")
	stateCmd.AddCommand(resetCmd)

	return stateCmd
}
