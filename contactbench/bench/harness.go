// Package bench drives the executor across a catalogue of named scenarios
// and records one result per run. Execution is strictly sequential so each
// measurement reflects a single in-flight query.
package bench

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/contactbench/contactbench/contactbench"
	"github.com/contactbench/contactbench/contactbench/cancel"
	"github.com/contactbench/contactbench/contactbench/exec"
	"github.com/contactbench/contactbench/contactbench/plan"
	"github.com/contactbench/contactbench/contactbench/registry"
	"github.com/contactbench/contactbench/contactbench/store"
)

// Result is one recorded run. Err is the error string for non-success
// statuses; every result carries a terminal status in its metrics.
type Result struct {
	Scenario  string       `json:"scenario"`
	Run       int          `json:"run"`
	Variant   PageVariant  `json:"variant,omitempty"`
	Page      int          `json:"page"`
	Metrics   exec.Metrics `json:"-"`
	Total     int64        `json:"total"`
	Err       string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Options configures a harness run. Deadline applies per run; Repetitions is
// the default for scenarios that do not set their own.
type Options struct {
	Deadline    time.Duration
	Repetitions int
	Rand        *rand.Rand
	Log         *logrus.Logger
	Now         func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Deadline:    contactbench.DefaultQueryTimeout,
		Repetitions: 3,
		Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		Log:         logrus.StandardLogger(),
		Now:         time.Now,
	}
}

// Harness runs scenarios against one store through one executor.
type Harness struct {
	reg  *registry.Registry
	st   store.Store
	exec *exec.Executor
	opts Options
}

func NewHarness(reg *registry.Registry, st store.Store, ex *exec.Executor, opts Options) *Harness {
	if opts.Repetitions <= 0 {
		opts.Repetitions = 3
	}
	if opts.Deadline <= 0 {
		opts.Deadline = contactbench.DefaultQueryTimeout
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Harness{reg: reg, st: st, exec: ex, opts: opts}
}

// Run executes every scenario in order. A failing run is recorded and the
// harness moves on; only a scenario template that does not validate aborts
// the run, since every repetition of it would fail identically before
// reaching the store.
func (h *Harness) Run(ctx context.Context, scenarios []Scenario) ([]Result, error) {
	var results []Result

	for _, sc := range scenarios {
		entity := sc.Entity
		if entity == "" {
			entity = registry.EntityAppUser
		}
		reps := sc.Repetitions
		if reps <= 0 {
			reps = h.opts.Repetitions
		}

		log := h.opts.Log.WithFields(logrus.Fields{"scenario": sc.Name, "repetitions": reps})
		log.Info("running scenario")

		// Validate the template once up front; fail fast before any store
		// round-trip.
		template, err := plan.Build(h.reg, entity, sc.Params)
		if err != nil {
			return results, err
		}

		pages, countResult := h.resolvePages(ctx, sc, template)
		if countResult != nil {
			results = append(results, *countResult)
			if countResult.Metrics.Status != exec.StatusSuccess {
				log.WithField("status", countResult.Metrics.Status).Warn("count query failed; skipping scenario pages")
				continue
			}
		}

		for run := 0; run < reps; run++ {
			for _, pv := range pages {
				// Fresh plan and fresh token per repetition.
				p, err := plan.Build(h.reg, entity, sc.Params)
				if err != nil {
					return results, err
				}
				if pv.page > 0 {
					p = p.WithPage(pv.page)
				}

				tok := cancel.WithTimeout(h.opts.Now(), h.opts.Deadline)
				out := h.exec.Execute(ctx, h.st, p, tok)
				results = append(results, h.record(sc.Name, run, pv.variant, p.Page.Page, out))

				if out.Metrics.Status != exec.StatusSuccess {
					log.WithFields(logrus.Fields{
						"run":    run,
						"status": out.Metrics.Status,
					}).Warn("run did not succeed")
				}
			}
		}
	}

	return results, nil
}

type pageChoice struct {
	variant PageVariant
	page    int // 0 means the template's own page
}

// resolvePages expands a scenario's pagination variants into concrete page
// numbers. Variants need the total row count, fetched through the executor
// under the same deadline discipline; the count run is returned so it is
// recorded like any other.
func (h *Harness) resolvePages(ctx context.Context, sc Scenario, template *plan.QueryPlan) ([]pageChoice, *Result) {
	if len(sc.PageVariants) == 0 {
		return []pageChoice{{}}, nil
	}

	tok := cancel.WithTimeout(h.opts.Now(), h.opts.Deadline)
	out := h.exec.ExecuteCount(ctx, h.st, template, tok)
	countRes := h.record(sc.Name, 0, "count", 0, out)
	if out.Metrics.Status != exec.StatusSuccess {
		return nil, &countRes
	}

	pageSize := template.Page.PageSize
	lastPage := int((out.Total + int64(pageSize) - 1) / int64(pageSize))
	if lastPage < 1 {
		lastPage = 1
	}

	choices := make([]pageChoice, 0, len(sc.PageVariants))
	for _, v := range sc.PageVariants {
		switch v {
		case PageFirst:
			choices = append(choices, pageChoice{v, 1})
		case PageMiddle:
			choices = append(choices, pageChoice{v, (lastPage + 1) / 2})
		case PageLast:
			choices = append(choices, pageChoice{v, lastPage})
		case PageRandom:
			choices = append(choices, pageChoice{v, 1 + h.opts.Rand.Intn(lastPage)})
		}
	}
	return choices, &countRes
}

func (h *Harness) record(scenario string, run int, variant PageVariant, page int, out *exec.Outcome) Result {
	res := Result{
		Scenario:  scenario,
		Run:       run,
		Variant:   variant,
		Page:      page,
		Metrics:   out.Metrics,
		Total:     out.Total,
		Timestamp: h.opts.Now(),
	}
	if out.Err != nil {
		res.Err = out.Err.Error()
	}
	return res
}
