package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telnet2/eventrouter/internal/benchstore"
)

var (
	historyDB    string
	historyLimit int
	historyJSON  bool
	historyQuery string
	historyDrop  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded bench runs",
	Long: `List the bench runs recorded with 'eventrouter bench --record', newest
first, or show one run with its epochs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", "", "History database (default from config)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print as JSON")
	historyCmd.Flags().StringVarP(&historyQuery, "query", "q", "", "jq expression applied to the JSON output (implies --json)")
	historyCmd.Flags().BoolVar(&historyDrop, "delete", false, "Delete the given run")
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := historyDB
	if path == "" {
		path = appConfig.Bench.HistoryDB
	}
	if path == "" {
		return fmt.Errorf("no history database: pass --db or set bench.history_db")
	}

	store, err := benchstore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := NewRenderer(cmd.OutOrStdout(), noColor)
	asJSON := historyJSON || historyQuery != ""

	if len(args) == 1 {
		if historyDrop {
			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			out.Dim("deleted %s", args[0])
			return nil
		}

		run, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return out.JSON(run, historyQuery)
		}
		out.Heading("Run %s", run.ID)
		out.Line("  started:  %s", run.Started.Format("2006-01-02 15:04:05"))
		out.Line("  shape:    %d producers × %d events, %d types × %d subscribers",
			run.Config.Producers, run.Config.Events, run.Config.Types, run.Config.Subscribers)
		out.Line("  router:   %s, %s wait", run.Scope, run.WaitStrategy)
		out.Line("")
		for _, e := range run.Epochs {
			out.Result(e.Received == run.Dispatches, "  Epoch #%d: %d events in %d ms",
				e.Epoch, e.Received, e.Elapsed.Milliseconds())
		}
		out.Line("")
		out.Line("  Avg: %d events in %d ms", run.Dispatches, run.Average.Milliseconds())
		return nil
	}
	if historyDrop {
		return fmt.Errorf("--delete needs a run ID")
	}

	runs, err := store.List(ctx, historyLimit)
	if err != nil {
		return err
	}
	if asJSON {
		return out.JSON(runs, historyQuery)
	}
	if len(runs) == 0 {
		out.Dim("no runs recorded in %s", path)
		return nil
	}
	for _, run := range runs {
		out.Line("%s  %s  %d×%d→%d×%d  avg %d ms over %d epochs",
			run.ID, run.Started.Format("2006-01-02 15:04:05"),
			run.Config.Producers, run.Config.Events, run.Config.Types, run.Config.Subscribers,
			run.Average.Milliseconds(), run.Config.Epochs)
	}
	return nil
}
