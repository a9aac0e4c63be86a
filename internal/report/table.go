package report

import (
	"fmt"
	"io"
	"time"

	"github.com/osvaldoandrade/suiterun/internal/services"
	"github.com/osvaldoandrade/suiterun/pkg/domain"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableOptions controls WriteTable.
type TableOptions struct {
	// Colored switches to the colored styles; leave false when w is not a terminal.
	Colored bool
}

// WriteTable renders one row per submitted execution, in submission order.
func WriteTable(w io.Writer, r domain.RunReport, opts TableOptions) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("suiterun %s (%d rounds, %s)", r.Outcome, r.Result.Rounds, formatDuration(r.Duration)))

	t.AppendHeader(table.Row{"#", "Execution", "Running status", "Status", "Result"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Execution", WidthMax: 48, WidthMaxEnforcer: text.WrapSoft},
	})

	for i, h := range r.Result.Handles {
		st, ok := r.Result.Final[h]
		if !ok {
			t.AppendRow(table.Row{i + 1, string(h), "pending", "-", "-"})
			continue
		}
		t.AppendRow(table.Row{i + 1, string(h), string(st.RunningStatus), verdictText(st.Status), services.ExecutionObjectPath(h)})
	}

	t.AppendFooter(table.Row{"", fmt.Sprintf("%d executions", len(r.Result.Handles)), "", "", string(r.Outcome)})

	switch {
	case !opts.Colored:
		t.SetStyle(table.StyleLight)
	case r.Outcome == domain.OutcomePassed:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case r.Outcome == domain.OutcomeTimeout:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.Render()
}

func verdictText(v domain.Verdict) string {
	if v == "" {
		return "-"
	}
	return string(v)
}

func formatDuration(seconds float64) string {
	return (time.Duration(seconds * float64(time.Second))).Round(time.Millisecond).String()
}

// WriteHistory renders recent runs, newest first.
func WriteHistory(w io.Writer, runs []domain.RunRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("suiterun history")
	t.AppendHeader(table.Row{"Finished", "Run", "Project", "Suite", "Outcome", "Executions", "Failed", "Pending", "Rounds", "Duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Executions", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Pending", Align: text.AlignRight},
		{Name: "Rounds", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
	})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.FinishedAt.Format(time.RFC3339),
			r.RunID,
			r.ProjectID,
			r.SuiteID,
			string(r.Outcome),
			r.Executions,
			r.Failed,
			r.Pending,
			r.Rounds,
			formatDuration(r.DurationSeconds),
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
