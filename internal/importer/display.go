// internal/importer/display.go
package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// PrintReport writes a colored summary of a batch run for the person driving
// the import.
func PrintReport(w io.Writer, report *Report) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintln(w, green(fmt.Sprintf("domain %s: %d documents imported",
		report.Domain, report.Imported)))

	for slug, deps := range report.Skipped {
		fmt.Fprintln(w, yellow(fmt.Sprintf("skipped %s (unresolved: %s)",
			slug, strings.Join(deps, ", "))))
	}

	for _, failure := range report.Failures {
		identity := failure.Slug
		if failure.Language != "" {
			identity = fmt.Sprintf("%s/%s", failure.Slug, failure.Language)
		}
		fmt.Fprintln(w, red(fmt.Sprintf("failed %s: %v", identity, failure.Err)))
	}

	if len(report.Failures) > 0 || len(report.Skipped) > 0 {
		fmt.Fprintln(w, red(fmt.Sprintf("%d failures, %d skipped",
			len(report.Failures), len(report.Skipped))))
	}
}
