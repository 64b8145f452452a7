package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/airframesio/table-reconciler/cmd/reconcile"
)

// JSONWriter serializes the run with outcome names and a triage summary.
type JSONWriter struct {
	Indent bool
}

type jsonDocument struct {
	Started   time.Time                       `json:"started"`
	Finished  time.Time                       `json:"finished"`
	Identical bool                            `json:"identical"`
	Summary   map[reconcile.Category][]string `json:"summary"`
	Tables    []*reconcile.Report             `json:"tables"`
}

func (jw *JSONWriter) Write(w io.Writer, run *reconcile.Run) error {
	doc := jsonDocument{
		Started:   run.Started,
		Finished:  run.Finished,
		Identical: run.Identical(),
		Summary:   run.Summary(),
		Tables:    run.Reports(),
	}

	encoder := json.NewEncoder(w)
	if jw.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(doc)
}
