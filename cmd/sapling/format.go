package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// formatModulesText formats CLIModule results as aligned columns.
func formatModulesText(w io.Writer, mods []CLIModule) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH\tFILE\tINLINE")
	for _, m := range mods {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", m.ID, m.Path, m.File, m.Inline)
	}
	tw.Flush()
}

// formatItemsText formats CLIItem results as aligned columns.
func formatItemsText(w io.Writer, items []CLIItem) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tNAME\tKIND\tVISIBILITY\tSOURCE")
	for _, it := range items {
		source := it.File
		if it.Macro != "" {
			source = it.Macro
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.Module, it.Name, it.Kind, it.Visibility, source)
	}
	tw.Flush()
}

// formatBindingsText formats CLIBinding results as aligned columns.
func formatBindingsText(w io.Writer, bindings []CLIBinding) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tNAME\tBINDING\tKIND\tTARGET")
	for _, b := range bindings {
		target := b.Target
		if b.DefID == 0 {
			target = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.Module, b.Name, b.Kind, b.DefKind, target)
	}
	tw.Flush()
}

// formatImportsText formats CLIImport results as aligned columns.
func formatImportsText(w io.Writer, imports []CLIImport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tPATH\tALIAS\tVISIBILITY")
	for _, imp := range imports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", imp.Module, imp.Path, imp.Alias, imp.Visibility)
	}
	tw.Flush()
}

// formatReexportsText formats CLIReexport results as aligned columns.
func formatReexportsText(w io.Writer, reexports []CLIReexport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tFROM\tNAME")
	for _, r := range reexports {
		name := r.Name
		if r.Glob {
			name = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Module, r.From, name)
	}
	tw.Flush()
}

// formatDiagnosticsText formats diagnostics one per line, compiler style.
func formatDiagnosticsText(w io.Writer, diags []CLIDiagnostic) {
	for _, d := range diags {
		fmt.Fprintf(w, "%s: %s: %s\n", d.Severity, d.Module, d.Message)
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to w.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIModule:
		formatModulesText(w, v)
	case []CLIItem:
		formatItemsText(w, v)
	case []CLIBinding:
		formatBindingsText(w, v)
	case []CLIImport:
		formatImportsText(w, v)
	case []CLIReexport:
		formatReexportsText(w, v)
	case []CLIDiagnostic:
		formatDiagnosticsText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputError reports err in the selected format and marks it handled.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	_ = writeResult(os.Stdout, CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
