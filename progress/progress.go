package progress

import (
	"context"
	"sync"
	"time"
)

// Delta represents an incremental counter change emitted by the fan-out,
// processor or executor. Fields are signed.
type Delta struct {
	Total     int
	Completed int
	Failed    int
	Running   int
	Pending   int
}

// Progress keeps aggregated activation counters for a single dispatch. It is
// safe for concurrent use.
type Progress struct {
	BatchID   string
	JobKey    string
	StartedAt time.Time

	Total     int
	Completed int
	Failed    int
	Running   int
	Pending   int

	// MaxRunning is the highest Running value observed.
	MaxRunning int

	sync.Mutex
	onChange func(Progress)
}

// Update applies the delta. The onChange callback, if any, receives a copy
// taken under the lock and runs outside of it.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.Lock()
	p.Total += d.Total
	p.Completed += d.Completed
	p.Failed += d.Failed
	p.Running += d.Running
	p.Pending += d.Pending
	if p.Running > p.MaxRunning {
		p.MaxRunning = p.Running
	}
	snapshot := p.copy()
	cb := p.onChange
	p.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the tracker suitable for read-only inspection.
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.Lock()
	defer p.Unlock()
	return p.copy()
}

// Done reports whether every tracked activation finished.
func (p *Progress) Done() bool {
	s := p.Snapshot()
	return s.Completed+s.Failed >= s.Total && s.Running == 0 && s.Pending == 0
}

// OnChange registers a callback invoked after every Update; nil disables it.
func (p *Progress) OnChange(cb func(Progress)) {
	if p == nil {
		return
	}
	p.Lock()
	p.onChange = cb
	p.Unlock()
}

func (p *Progress) copy() Progress {
	return Progress{
		BatchID:    p.BatchID,
		JobKey:     p.JobKey,
		StartedAt:  p.StartedAt,
		Total:      p.Total,
		Completed:  p.Completed,
		Failed:     p.Failed,
		Running:    p.Running,
		Pending:    p.Pending,
		MaxRunning: p.MaxRunning,
	}
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// New creates a tracker for a dispatch
func New(batchID, jobKey string, onChange func(Progress)) *Progress {
	return &Progress{BatchID: batchID, JobKey: jobKey, StartedAt: time.Now(), onChange: onChange}
}

// WithNewTracker creates a tracker and embeds it in a derived context.
func WithNewTracker(ctx context.Context, batchID, jobKey string, onChange func(Progress)) (context.Context, *Progress) {
	if ctx == nil {
		ctx = context.Background()
	}
	tr := New(batchID, jobKey, onChange)
	return WithTracker(ctx, tr), tr
}

// WithTracker embeds an existing tracker in ctx.
func WithTracker(ctx context.Context, tr *Progress) context.Context {
	return context.WithValue(ctx, trackerKey, tr)
}

// FromContext extracts the tracker from ctx.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// UpdateCtx applies the delta to the tracker carried by ctx, if any.
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
