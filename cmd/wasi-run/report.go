package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/wippyai/wasi-bridge/linker"
)

// printReport lists the guest's imports and how each was bound.
func printReport(w io.Writer, path string, report *linker.Report) {
	fmt.Fprintf(w, "%s\n\n", path)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAMESPACE", "FUNCTION", "SIGNATURE", "STATE")
	for _, b := range report.Filter("", linker.Present, linker.Stubbed) {
		t.Row(b.Namespace, b.Name, b.Signature(), b.State.String())
	}
	for _, imp := range report.Foreign {
		t.Row(imp.Module, imp.Name, linker.Signature(imp.Params, imp.Results), "foreign")
	}
	fmt.Fprintln(w, t.Render())

	fmt.Fprintf(w, "\npresent %d, stubbed %d, foreign %d, unused host functions %d\n",
		report.Count(linker.Present),
		report.Count(linker.Stubbed),
		len(report.Foreign),
		report.Count(linker.Absent))
}
