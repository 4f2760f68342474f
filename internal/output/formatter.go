package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Format represents supported output formats
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"

	// tabwriterPadding is the padding between columns in table output
	tabwriterPadding = 2
)

// Formatter renders command results on stdout, logs go to stderr
type Formatter struct {
	writer io.Writer
	format Format
}

// NewFormatter creates a new output formatter writing to w.
// Unknown formats fall back to table.
func NewFormatter(w io.Writer, format string) *Formatter {
	f := Format(format)
	if f != FormatTable && f != FormatJSON {
		f = FormatTable
	}
	return &Formatter{
		writer: w,
		format: f,
	}
}

// Table represents a table with headers and rows
type Table struct {
	Headers []string
	Rows    [][]string
}

// IsJSON reports whether output is machine readable
func (f *Formatter) IsJSON() bool {
	return f.format == FormatJSON
}

// PrintTable prints rows as an aligned table, or as a JSON array of
// header-keyed objects
func (f *Formatter) PrintTable(table Table) error {
	if f.IsJSON() {
		return f.PrintJSON(tableToMaps(table))
	}

	if len(table.Rows) == 0 {
		_, err := fmt.Fprintln(f.writer, "No data found")
		return err
	}

	w := tabwriter.NewWriter(f.writer, 0, 0, tabwriterPadding, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(table.Headers, "\t"))
	for _, row := range table.Rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

// PrintJSON prints v as indented JSON regardless of the configured format
func (f *Formatter) PrintJSON(v interface{}) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// PrintMessage prints a simple message (only in table format, ignored in JSON)
func (f *Formatter) PrintMessage(format string, args ...interface{}) {
	if !f.IsJSON() {
		_, _ = fmt.Fprintf(f.writer, format+"\n", args...)
	}
}

// tableToMaps converts a Table to a slice of maps for JSON output
func tableToMaps(table Table) []map[string]string {
	result := make([]map[string]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		item := make(map[string]string, len(table.Headers))
		for i, header := range table.Headers {
			if i < len(row) {
				item[strings.ToLower(header)] = row[i]
			}
		}
		result = append(result, item)
	}
	return result
}
