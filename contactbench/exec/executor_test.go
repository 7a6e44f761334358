package exec

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactbench/contactbench/contactbench"
	"github.com/contactbench/contactbench/contactbench/cancel"
	"github.com/contactbench/contactbench/contactbench/plan"
	"github.com/contactbench/contactbench/contactbench/registry"
	"github.com/contactbench/contactbench/contactbench/store"
)

// fakeStore answers Query/Count after a fixed delay, or with a fixed error.
// It respects context cancellation while delaying, like a real driver would,
// unless ignoreCtx simulates a driver with no context support.
type fakeStore struct {
	delay     time.Duration
	ignoreCtx bool
	res       *store.Result
	err       error
	calls     atomic.Int64
}

func (f *fakeStore) Query(ctx context.Context, req store.Request) (*store.Result, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeStore) Count(ctx context.Context, req store.Request) (int64, error) {
	res, err := f.Query(ctx, req)
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

func (f *fakeStore) Stats(ctx context.Context) (*store.Stats, error) { return &store.Stats{}, nil }

func (f *fakeStore) Close() error { return nil }

func testPlan(t *testing.T) *plan.QueryPlan {
	t.Helper()
	p, err := plan.Build(registry.Contacts(), registry.EntityAppUser, map[string]string{
		"first_name__icontains": "John",
	})
	require.NoError(t, err)
	return p
}

func newExecutor(poll time.Duration) *Executor {
	return New(Options{PollInterval: poll, Now: time.Now})
}

func TestExecuteSuccess(t *testing.T) {
	st := &fakeStore{
		res: &store.Result{
			Rows:       []store.Contact{{ID: 1}, {ID: 2}, {ID: 3}},
			Total:      37,
			Statements: 2,
		},
	}
	tok := cancel.WithTimeout(time.Now(), time.Second)

	out := newExecutor(5 * time.Millisecond).Execute(context.Background(), st, testPlan(t), tok)

	require.NoError(t, out.Err)
	assert.Equal(t, StatusSuccess, out.Metrics.Status)
	assert.Len(t, out.Rows, 3)
	assert.Equal(t, int64(37), out.Total)
	assert.Equal(t, 2, out.Metrics.Statements)
	assert.Equal(t, 3, out.Metrics.Rows)
	assert.Equal(t, int64(1), st.calls.Load())
}

func TestExecutePreCancelledSkipsStore(t *testing.T) {
	st := &fakeStore{res: &store.Result{}}
	tok := cancel.WithTimeout(time.Now(), time.Second)
	tok.Cancel()

	out := newExecutor(5 * time.Millisecond).Execute(context.Background(), st, testPlan(t), tok)

	assert.Equal(t, StatusCancelled, out.Metrics.Status)
	assert.True(t, contactbench.IsKind(out.Err, contactbench.ErrCancelled))
	assert.Equal(t, int64(0), st.calls.Load(), "a pre-cancelled token must never reach the store")
}

func TestExecuteExpiredDeadlineSkipsStore(t *testing.T) {
	st := &fakeStore{res: &store.Result{}}
	tok := cancel.WithTimeout(time.Now().Add(-time.Second), 500*time.Millisecond)

	out := newExecutor(5 * time.Millisecond).Execute(context.Background(), st, testPlan(t), tok)

	assert.Equal(t, StatusTimedOut, out.Metrics.Status)
	assert.True(t, contactbench.IsKind(out.Err, contactbench.ErrTimedOut))
	assert.Equal(t, int64(0), st.calls.Load())
}

func TestExecuteTimedOutWithinPollBound(t *testing.T) {
	const (
		deadline = 40 * time.Millisecond
		poll     = 10 * time.Millisecond
	)
	st := &fakeStore{delay: time.Second, res: &store.Result{}}
	tok := cancel.WithTimeout(time.Now(), deadline)

	start := time.Now()
	out := newExecutor(poll).Execute(context.Background(), st, testPlan(t), tok)
	elapsed := time.Since(start)

	assert.Equal(t, StatusTimedOut, out.Metrics.Status)
	assert.True(t, contactbench.IsKind(out.Err, contactbench.ErrTimedOut))
	assert.GreaterOrEqual(t, elapsed, deadline)
	// Detection lag is bounded by one poll interval plus scheduling slack.
	assert.Less(t, elapsed, deadline+poll+50*time.Millisecond)
}

func TestExecuteCancelMidFlight(t *testing.T) {
	const poll = 10 * time.Millisecond
	st := &fakeStore{delay: time.Second, res: &store.Result{}}
	tok := cancel.WithTimeout(time.Now(), 10*time.Second)

	go func() {
		time.Sleep(30 * time.Millisecond)
		tok.Cancel()
	}()

	start := time.Now()
	out := newExecutor(poll).Execute(context.Background(), st, testPlan(t), tok)
	elapsed := time.Since(start)

	assert.Equal(t, StatusCancelled, out.Metrics.Status)
	assert.True(t, contactbench.IsKind(out.Err, contactbench.ErrCancelled))
	assert.Empty(t, out.Rows, "no rows may surface after cancellation")
	assert.Less(t, elapsed, 30*time.Millisecond+poll+50*time.Millisecond)
}

func TestExecuteResultPastDeadlineIsTimedOut(t *testing.T) {
	const deadline = 30 * time.Millisecond
	// The driver never observes the context and answers shortly after the
	// deadline but before the first poll tick; the result must still be
	// discarded as timed out.
	st := &fakeStore{
		delay:     deadline + 10*time.Millisecond,
		ignoreCtx: true,
		res:       &store.Result{Rows: []store.Contact{{ID: 1}}, Total: 1},
	}
	tok := cancel.WithTimeout(time.Now(), deadline)

	out := newExecutor(300 * time.Millisecond).Execute(context.Background(), st, testPlan(t), tok)

	assert.Equal(t, StatusTimedOut, out.Metrics.Status)
	assert.True(t, contactbench.IsKind(out.Err, contactbench.ErrTimedOut))
	assert.Empty(t, out.Rows, "rows must not surface past the deadline")
}

func TestExecuteLateResultDiscardedAfterCancel(t *testing.T) {
	// The store answers quickly, but the token is cancelled before the
	// executor picks the response up. Success must not surface.
	st := &fakeStore{
		delay: 20 * time.Millisecond,
		res:   &store.Result{Rows: []store.Contact{{ID: 1}}, Total: 1},
	}
	tok := cancel.WithTimeout(time.Now(), 10*time.Second)
	go func() {
		time.Sleep(5 * time.Millisecond)
		tok.Cancel()
	}()

	out := newExecutor(time.Millisecond).Execute(context.Background(), st, testPlan(t), tok)

	assert.Equal(t, StatusCancelled, out.Metrics.Status)
	assert.Empty(t, out.Rows)
}

func TestExecuteStoreErrorIsFailed(t *testing.T) {
	st := &fakeStore{err: contactbench.New(contactbench.ErrSQL, "syntax error near SELECT")}
	tok := cancel.WithTimeout(time.Now(), time.Second)

	out := newExecutor(5 * time.Millisecond).Execute(context.Background(), st, testPlan(t), tok)

	assert.Equal(t, StatusFailed, out.Metrics.Status)
	assert.True(t, contactbench.IsKind(out.Err, contactbench.ErrExecutionFailed))
}

func TestExecuteStoreTimeoutErrorIsTimedOut(t *testing.T) {
	st := &fakeStore{err: contactbench.TimedOutError("canceling statement due to statement timeout")}
	tok := cancel.WithTimeout(time.Now(), time.Second)

	out := newExecutor(5 * time.Millisecond).Execute(context.Background(), st, testPlan(t), tok)

	assert.Equal(t, StatusTimedOut, out.Metrics.Status)
	assert.True(t, contactbench.IsKind(out.Err, contactbench.ErrTimedOut))
}

func TestExecuteCount(t *testing.T) {
	st := &fakeStore{res: &store.Result{Total: 9001}}
	tok := cancel.WithTimeout(time.Now(), time.Second)

	out := newExecutor(5 * time.Millisecond).ExecuteCount(context.Background(), st, testPlan(t), tok)

	require.NoError(t, out.Err)
	assert.Equal(t, StatusSuccess, out.Metrics.Status)
	assert.Equal(t, int64(9001), out.Total)
	assert.Equal(t, 1, out.Metrics.Statements)
}

func TestExecuteConcurrent(t *testing.T) {
	st := &fakeStore{
		delay: 5 * time.Millisecond,
		res:   &store.Result{Rows: []store.Contact{{ID: 1}}, Total: 1, Statements: 2},
	}
	ex := newExecutor(5 * time.Millisecond)
	p := testPlan(t)

	var wg sync.WaitGroup
	outs := make([]*Outcome, 20)
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := cancel.WithTimeout(time.Now(), time.Second)
			outs[i] = ex.Execute(context.Background(), st, p, tok)
		}(i)
	}
	wg.Wait()

	for i, out := range outs {
		assert.Equal(t, StatusSuccess, out.Metrics.Status, "execution %d", i)
		assert.Equal(t, int64(1), out.Total, "execution %d", i)
	}
	assert.Equal(t, int64(20), st.calls.Load())
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	for _, s := range []Status{StatusSuccess, StatusCancelled, StatusTimedOut, StatusFailed} {
		assert.True(t, s.Terminal(), string(s))
	}
}
