// Package exec runs one QueryPlan against a store under a cancellation
// token's deadline. The wait on the store is a bounded-interval race: the
// executor polls the token while the store call is in flight and detaches as
// soon as cancellation or expiry is observed.
package exec

import (
	"context"
	"errors"
	"time"

	"github.com/contactbench/contactbench/contactbench"
	"github.com/contactbench/contactbench/contactbench/cancel"
	"github.com/contactbench/contactbench/contactbench/plan"
	"github.com/contactbench/contactbench/contactbench/store"
)

// Status is the terminal state of one execution. Every execution starts
// Pending and moves to exactly one terminal status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed_out"
	StatusFailed    Status = "execution_failed"
)

// Terminal reports whether the status is one of the four end states.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusCancelled, StatusTimedOut, StatusFailed:
		return true
	}
	return false
}

// Metrics is the per-execution measurement window. Nothing here is shared
// across executions.
type Metrics struct {
	Duration   time.Duration
	Statements int
	Rows       int
	Status     Status
}

// Outcome is the result of one execution. Err is set for every non-Success
// status and carries the matching error kind.
type Outcome struct {
	Rows    []store.Contact
	Total   int64
	Metrics Metrics
	Err     error
}

// Options configures an Executor. PollInterval bounds how long the executor
// can keep waiting after cancellation or expiry; Now is injectable for
// tests.
type Options struct {
	PollInterval time.Duration
	Now          func() time.Time
}

func DefaultOptions() Options {
	return Options{
		PollInterval: contactbench.DefaultPollInterval,
		Now:          time.Now,
	}
}

// Executor executes plans. It holds no per-call state and is safe for any
// number of concurrent callers.
type Executor struct {
	opts Options
}

func New(opts Options) *Executor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = contactbench.DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Executor{opts: opts}
}

// Execute runs the plan's page query (rows + total count) under the token.
func (e *Executor) Execute(ctx context.Context, st store.Store, p *plan.QueryPlan, tok *cancel.Token) *Outcome {
	return e.run(ctx, tok, func(qctx context.Context, timeout time.Duration) (*store.Result, error) {
		return st.Query(qctx, store.Request{Plan: p, Timeout: timeout})
	})
}

// ExecuteCount runs only the plan's total count under the token. The
// harness uses it to size pagination variants with the same timeout
// discipline as row queries.
func (e *Executor) ExecuteCount(ctx context.Context, st store.Store, p *plan.QueryPlan, tok *cancel.Token) *Outcome {
	return e.run(ctx, tok, func(qctx context.Context, timeout time.Duration) (*store.Result, error) {
		total, err := st.Count(qctx, store.Request{Plan: p, Timeout: timeout})
		if err != nil {
			return nil, err
		}
		return &store.Result{Total: total, Statements: 1}, nil
	})
}

type storeResponse struct {
	res *store.Result
	err error
}

func (e *Executor) run(ctx context.Context, tok *cancel.Token, call func(context.Context, time.Duration) (*store.Result, error)) *Outcome {
	start := e.opts.Now()

	// Pre-cancelled tokens never reach the store.
	if tok.Cancelled() {
		return e.terminal(start, StatusCancelled, contactbench.CancelledError("cancelled before dispatch"))
	}
	deadline := tok.Deadline()
	timeout := deadline.Sub(start)
	if timeout <= 0 {
		return e.terminal(start, StatusTimedOut, contactbench.TimedOutError("deadline already expired"))
	}

	qctx, detach := context.WithDeadline(ctx, deadline)
	defer detach()

	ch := make(chan storeResponse, 1)
	go func() {
		res, err := call(qctx, timeout)
		ch <- storeResponse{res: res, err: err}
	}()

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case resp := <-ch:
			// A result that arrives after cancellation or past the deadline
			// is discarded; Success must never surface once either has been
			// observed. The deadline check matters for drivers that do not
			// watch the context, like sqlite.
			if tok.Cancelled() {
				return e.terminal(start, StatusCancelled, contactbench.CancelledError("cancelled while waiting on store"))
			}
			if e.opts.Now().After(deadline) {
				return e.terminal(start, StatusTimedOut, contactbench.TimedOutError("deadline exceeded"))
			}
			if resp.err != nil {
				if isTimeout(resp.err) {
					return e.terminal(start, StatusTimedOut, contactbench.Wrap(contactbench.ErrTimedOut, "store query timed out", resp.err))
				}
				return e.terminal(start, StatusFailed, contactbench.ExecutionError("store query failed", resp.err))
			}
			out := e.terminal(start, StatusSuccess, nil)
			out.Rows = resp.res.Rows
			out.Total = resp.res.Total
			out.Metrics.Statements = resp.res.Statements
			out.Metrics.Rows = len(resp.res.Rows)
			return out

		case <-ticker.C:
			now := e.opts.Now()
			if tok.Cancelled() {
				detach() // best-effort abort of the pending store call
				return e.terminal(start, StatusCancelled, contactbench.CancelledError("cancelled while waiting on store"))
			}
			if now.After(deadline) {
				detach()
				return e.terminal(start, StatusTimedOut, contactbench.TimedOutError("deadline exceeded"))
			}
		}
	}
}

func (e *Executor) terminal(start time.Time, status Status, err error) *Outcome {
	return &Outcome{
		Err: err,
		Metrics: Metrics{
			Duration: e.opts.Now().Sub(start),
			Status:   status,
		},
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		contactbench.IsKind(err, contactbench.ErrTimedOut)
}
