package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/contactbench/contactbench/contactbench"
)

// WriteJSON writes the full report, rows plus summaries, as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return contactbench.Wrap(contactbench.ErrExport, "encode json", err)
	}
	return nil
}

var csvHeader = []string{
	"scenario", "run", "variant", "page", "status",
	"duration_ms", "query_count", "result_count", "error",
}

// WriteCSV writes one line per result with the same field set as the JSON
// rows.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return contactbench.Wrap(contactbench.ErrExport, "write csv header", err)
	}
	for _, row := range r.Rows {
		rec := []string{
			row.Scenario,
			strconv.Itoa(row.Run),
			row.Variant,
			strconv.Itoa(row.Page),
			row.Status,
			strconv.FormatFloat(row.DurationMS, 'f', 3, 64),
			strconv.Itoa(row.QueryCount),
			strconv.Itoa(row.ResultCount),
			row.Error,
		}
		if err := cw.Write(rec); err != nil {
			return contactbench.Wrap(contactbench.ErrExport, "write csv row", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return contactbench.Wrap(contactbench.ErrExport, "flush csv", err)
	}
	return nil
}
