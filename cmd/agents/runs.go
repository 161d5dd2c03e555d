package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/needze/agentflow/graph/store"
	"github.com/needze/agentflow/internal/comments"
	"github.com/needze/agentflow/internal/image"
	"github.com/needze/agentflow/internal/management"
	"github.com/needze/agentflow/internal/music"
	"github.com/needze/agentflow/internal/textflow"
)

// stepView is a persisted step with its state left generic for printing.
type stepView struct {
	Step      int       `json:"step"`
	NodeID    string    `json:"node_id"`
	CreatedAt time.Time `json:"created_at"`
	State     any       `json:"state"`
}

type runView struct {
	Workflow string     `json:"workflow"`
	RunID    string     `json:"run_id"`
	Steps    []stepView `json:"steps"`
}

// historyLoaders lists the steps of a run for each workflow's state type.
var historyLoaders = map[string]func(ctx context.Context, a *app, runID string) ([]stepView, error){
	management.WorkflowName: loadHistory[management.State],
	textflow.WorkflowName:   loadHistory[textflow.State],
	music.WorkflowName:      loadHistory[music.State],
	image.WorkflowName:      loadHistory[image.State],
	comments.WorkflowName:   loadHistory[comments.State],
}

func loadHistory[S any](ctx context.Context, a *app, runID string) ([]stepView, error) {
	st, closeStore, err := openStore[S](a)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	records, err := st.ListSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, store.ErrNotFound)
	}
	out := make([]stepView, len(records))
	for i, r := range records {
		out[i] = stepView{Step: r.Step, NodeID: r.NodeID, CreatedAt: r.CreatedAt, State: r.State}
	}
	return out, nil
}

func workflowNames() []string {
	names := make([]string, 0, len(historyLoaders))
	for n := range historyLoaders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func newRunsCmd(a *app) *cobra.Command {
	runs := &cobra.Command{
		Use:   "runs",
		Short: "Inspect persisted workflow runs",
	}

	show := &cobra.Command{
		Use:       "show <workflow> <run-id>",
		Short:     "Print the steps of a run",
		Long:      "Print the steps of a run. workflow is one of: " + strings.Join(workflowNames(), ", ") + ".",
		Args:      cobra.ExactArgs(2),
		ValidArgs: workflowNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			load, ok := historyLoaders[args[0]]
			if !ok {
				return fmt.Errorf("unknown workflow %q (want one of %s)", args[0], strings.Join(workflowNames(), ", "))
			}
			steps, err := load(cmd.Context(), a, args[1])
			if err != nil {
				return err
			}
			view := runView{Workflow: args[0], RunID: args[1], Steps: steps}
			return a.print(cmd.OutOrStdout(), view, func(w io.Writer) { printRun(w, view) })
		},
	}

	runs.AddCommand(show)
	return runs
}

func printRun(w io.Writer, v runView) {
	fmt.Fprintf(w, "%s run %s, %d steps\n", v.Workflow, v.RunID, len(v.Steps))
	for _, s := range v.Steps {
		fmt.Fprintf(w, "%4d  %-26s %s\n", s.Step, s.NodeID, s.CreatedAt.Format(time.RFC3339))
	}
	last := v.Steps[len(v.Steps)-1]
	data, err := json.MarshalIndent(last.State, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "\nfinal state: %v\n", err)
		return
	}
	fmt.Fprintf(w, "\nfinal state:\n%s\n", data)
}
