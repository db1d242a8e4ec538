package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voicekey/voicekey/pkg/cli"
	"github.com/voicekey/voicekey/pkg/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage saved transcripts",
}

func openHistory() (*history.Store, error) {
	return history.Open(history.Options{Dir: getConfig().HistoryDir()})
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved transcripts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		var records []*history.Record
		for rec, err := range store.List(cmd.Context()) {
			if err != nil {
				return err
			}
			records = append(records, rec)
		}

		if len(records) == 0 {
			cli.PrintInfo("No transcripts saved yet")
			return nil
		}
		if outputJSON {
			return cli.Output(os.Stdout, records, cli.FormatJSON)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWHEN\tDURATION\tTEXT")
		for _, rec := range records {
			text := rec.Text
			if len([]rune(text)) > 60 {
				text = string([]rune(text)[:57]) + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				rec.ID, rec.CreatedAt.Format("2006-01-02 15:04:05"),
				cli.FormatDuration(rec.Duration), text)
		}
		return w.Flush()
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Transcript %s deleted", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all transcripts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Clear(cmd.Context()); err != nil {
			return err
		}
		cli.PrintSuccess("History cleared")
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
}
