package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ppiankov/substantiate/internal/worker"
)

var outputJSON bool

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport renders a batch report as JSON or as one line per item
func printReport(w io.Writer, report worker.BatchReport) error {
	if outputJSON {
		return printJSON(w, report)
	}

	for _, item := range report.Items {
		if item.Err != nil {
			fmt.Fprintf(w, "✗ %s: %s\n", item.Key, item.Error)
			continue
		}
		fmt.Fprintf(w, "✓ %s\n", item.Key)
	}
	fmt.Fprintf(w, "\n%s: %d succeeded, %d failed, %d skipped in %v\n",
		report.Operation, report.Succeeded, report.Failed, report.Skipped, report.Duration)
	return nil
}
