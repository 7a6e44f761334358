// Package report folds benchmark results into per-scenario summaries and
// exports them in stable JSON and CSV shapes. Charting stays external: the
// report hands out numeric series only.
package report

import (
	"sort"
	"time"

	"github.com/contactbench/contactbench/contactbench/bench"
	"github.com/contactbench/contactbench/contactbench/exec"
)

// Row is one exported result with the stable field set shared by the JSON
// and CSV writers.
type Row struct {
	Scenario    string  `json:"scenario"`
	Run         int     `json:"run"`
	Variant     string  `json:"variant,omitempty"`
	Page        int     `json:"page,omitempty"`
	Status      string  `json:"status"`
	DurationMS  float64 `json:"duration_ms"`
	QueryCount  int     `json:"query_count"`
	ResultCount int     `json:"result_count"`
	Error       string  `json:"error,omitempty"`
}

// Summary aggregates one scenario. Duration statistics cover successful runs
// only; StatusCounts covers everything.
type Summary struct {
	Scenario     string         `json:"scenario"`
	Runs         int            `json:"runs"`
	StatusCounts map[string]int `json:"status_counts"`

	MeanMS   float64 `json:"mean_ms"`
	MedianMS float64 `json:"median_ms"`
	P95MS    float64 `json:"p95_ms"`
	MinMS    float64 `json:"min_ms"`
	MaxMS    float64 `json:"max_ms"`

	MeanQueryCount float64 `json:"mean_query_count"`
}

// Report is the finalized output of a harness run.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Rows        []Row     `json:"results"`
	Summaries   []Summary `json:"summary"`
}

// Series is a scenario's numeric data, the only thing a charting collaborator
// is handed.
type Series struct {
	DurationMS []float64
	QueryCount []float64
}

// Aggregate folds the flat result sequence into a report. Scenario order in
// the summaries follows first appearance in the results.
func Aggregate(results []bench.Result, now time.Time) *Report {
	r := &Report{GeneratedAt: now}

	byScenario := make(map[string][]bench.Result)
	var order []string
	for _, res := range results {
		if _, seen := byScenario[res.Scenario]; !seen {
			order = append(order, res.Scenario)
		}
		byScenario[res.Scenario] = append(byScenario[res.Scenario], res)
		r.Rows = append(r.Rows, toRow(res))
	}

	for _, name := range order {
		r.Summaries = append(r.Summaries, summarize(name, byScenario[name]))
	}
	return r
}

func toRow(res bench.Result) Row {
	return Row{
		Scenario:    res.Scenario,
		Run:         res.Run,
		Variant:     string(res.Variant),
		Page:        res.Page,
		Status:      string(res.Metrics.Status),
		DurationMS:  durationMS(res),
		QueryCount:  res.Metrics.Statements,
		ResultCount: res.Metrics.Rows,
		Error:       res.Err,
	}
}

func summarize(name string, results []bench.Result) Summary {
	s := Summary{
		Scenario:     name,
		Runs:         len(results),
		StatusCounts: make(map[string]int),
	}

	var durations []float64
	var queries int
	for _, res := range results {
		s.StatusCounts[string(res.Metrics.Status)]++
		if res.Metrics.Status == exec.StatusSuccess {
			durations = append(durations, durationMS(res))
			queries += res.Metrics.Statements
		}
	}
	if len(durations) == 0 {
		return s
	}

	sort.Float64s(durations)
	s.MinMS = durations[0]
	s.MaxMS = durations[len(durations)-1]
	s.MeanMS = mean(durations)
	s.MedianMS = median(durations)
	s.P95MS = percentile(durations, 0.95)
	s.MeanQueryCount = float64(queries) / float64(len(durations))
	return s
}

// SeriesByScenario returns the numeric series for each scenario, successful
// runs only.
func (r *Report) SeriesByScenario() map[string]Series {
	out := make(map[string]Series)
	for _, row := range r.Rows {
		if row.Status != string(exec.StatusSuccess) {
			continue
		}
		s := out[row.Scenario]
		s.DurationMS = append(s.DurationMS, row.DurationMS)
		s.QueryCount = append(s.QueryCount, float64(row.QueryCount))
		out[row.Scenario] = s
	}
	return out
}

func durationMS(res bench.Result) float64 {
	return float64(res.Metrics.Duration.Microseconds()) / 1000.0
}

func mean(sorted []float64) float64 {
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

// median averages the middle pair for even-length input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentile uses the nearest-rank method.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p*float64(len(sorted)) + 0.9999999)
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
