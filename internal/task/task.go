// Package task implements the per-target reconciliation loop: it compares
// observed addresses with the records a DNS provider holds and writes the
// difference back.
package task

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/addr"
	"github.com/yuriy-kovalchuk/yk-ddns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ddns/internal/source"
)

// ErrTooManyFailures is returned by Run when MaxFailures consecutive cycles failed.
var ErrTooManyFailures = errors.New("too many consecutive failed cycles")

// Metrics receives the outcome of cycles and provider calls.
type Metrics interface {
	ObserveCycle(task string, err error, consecutiveFailures int)
	ObserveProviderCall(task, op string, err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCycle(string, error, int)           {}
func (nopMetrics) ObserveProviderCall(string, string, error) {}

// Options configures a Task.
type Options struct {
	// Name identifies the task in logs and metrics, e.g. "cloudflare@example.com".
	Name     string
	Domain   string
	TTL      int
	Comment  string
	Provider dns.Provider
	Local    source.Source
	Router   source.Router
	Records  []RecordConfig
	Policy   Policy
	Metrics  Metrics
	Log      logr.Logger
}

// Task reconciles the records of one (provider, domain) target.
type Task struct {
	name     string
	provider dns.Provider
	local    source.Source
	router   source.Router
	policy   Policy
	metrics  Metrics
	log      logr.Logger

	mu      sync.Mutex
	boards  []*Board
	refresh int

	stateMu     sync.Mutex
	stopped     error
	lastSuccess time.Time
	failures    int
}

// New validates opts and builds a task with one board per record.
func New(opts Options) (*Task, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("task %s: provider is required", opts.Name)
	}
	if opts.Domain == "" {
		return nil, fmt.Errorf("task %s: domain is required", opts.Name)
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("task %s: invalid policy: %w", opts.Name, err)
	}
	if opts.Name == "" {
		opts.Name = opts.Domain
	}
	if opts.TTL == 0 {
		opts.TTL = dns.DefaultTTL
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}

	t := &Task{
		name:     opts.Name,
		provider: opts.Provider,
		local:    opts.Local,
		router:   opts.Router,
		policy:   opts.Policy,
		metrics:  opts.Metrics,
		log:      opts.Log,
	}

	for _, rc := range opts.Records {
		family, isAddr := rc.Type.Family()
		switch {
		case rc.Source != SourceLocal && rc.Source != SourceRouter:
			return nil, fmt.Errorf("task %s: record %s has unknown source", t.name, rc)
		case !isAddr:
		case rc.Source == SourceLocal && t.local == nil:
			return nil, fmt.Errorf("task %s: record %s needs a local source", t.name, rc)
		case rc.Source == SourceRouter && family == addr.IPv4 && t.router == nil:
			return nil, fmt.Errorf("task %s: record %s needs a router source", t.name, rc)
		}
		t.boards = append(t.boards, &Board{
			Config: rc,
			Local: dns.Record{
				Domain:  opts.Domain,
				Name:    rc.Name,
				Type:    rc.Type,
				TTL:     opts.TTL,
				Comment: opts.Comment,
			},
		})
	}
	return t, nil
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.name
}

// Snapshot returns a copy of every board.
func (t *Task) Snapshot() []Board {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Board, len(t.boards))
	for i, b := range t.boards {
		out[i] = b.clone()
	}
	return out
}

// Healthy returns nil while the run loop has not stopped on its own.
func (t *Task) Healthy() error {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if t.stopped != nil {
		return fmt.Errorf("task %s stopped (last success %s): %w", t.name, formatTime(t.lastSuccess), t.stopped)
	}
	return nil
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "never"
	}
	return ts.Format(time.RFC3339)
}

// Run performs cycles separated by jittered sleeps until ctx is cancelled,
// in which case it returns nil, or until Policy.MaxFailures consecutive
// cycles fail, in which case the returned error wraps ErrTooManyFailures.
func (t *Task) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.log.Info("starting", "records", len(t.boards), "interval", t.policy.Interval, "jitter", t.policy.Jitter)

	var stopErr error
	wait.JitterUntilWithContext(ctx, func(ctx context.Context) {
		err := t.Cycle(ctx)
		failures := t.recordCycle(err)
		t.metrics.ObserveCycle(t.name, err, failures)
		if err != nil {
			t.log.Error(err, "cycle failed", "consecutiveFailures", failures)
		}
		if t.policy.MaxFailures > 0 && failures >= t.policy.MaxFailures {
			stopErr = fmt.Errorf("task %s: %w (%d): %w", t.name, ErrTooManyFailures, failures, err)
			cancel()
		}
	}, t.policy.Interval, t.policy.Jitter, true)

	if stopErr != nil {
		t.stateMu.Lock()
		t.stopped = stopErr
		t.stateMu.Unlock()
		t.log.Error(stopErr, "stopping")
		return stopErr
	}
	t.log.Info("stopped")
	return nil
}

func (t *Task) recordCycle(err error) int {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if err != nil {
		t.failures++
	} else {
		t.failures = 0
		t.lastSuccess = time.Now()
	}
	return t.failures
}

// Cycle runs one reconciliation pass over every board. It returns every
// provider error of the pass joined together, plus a recovered panic if
// one occurred.
func (t *Task) Cycle(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.log.Error(fmt.Errorf("%v", r), "recovered from panic in cycle", "stack", string(debug.Stack()))
				errs = append(errs, fmt.Errorf("task %s: panic: %v", t.name, r))
			}
		}()
		t.reconcile(ctx, &errs)
	}()
	return errors.Join(errs...)
}

func (t *Task) reconcile(ctx context.Context, errs *[]error) {
	if t.refresh == 0 {
		t.log.V(1).Info("fetching remote state")
		for _, b := range t.boards {
			if t.managed(b) {
				*errs = appendErr(*errs, t.fetch(ctx, b))
			}
		}
		t.refresh = t.policy.NextRefresh()
		t.log.V(1).Info("next forced fetch scheduled", "cycles", t.refresh)
	} else {
		t.refresh--
	}

	for _, b := range t.boards {
		*errs = appendErr(*errs, t.reconcileBoard(ctx, b))
	}
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}

// managed reports whether the engine ever reads or writes the board.
func (t *Task) managed(b *Board) bool {
	family, ok := b.Config.Type.Family()
	if !ok {
		return false
	}
	return !(b.Config.Source == SourceRouter && family == addr.IPv6)
}

func (t *Task) reconcileBoard(ctx context.Context, b *Board) error {
	log := t.log.WithValues("record", b.Config.Name, "type", b.Config.Type, "source", b.Config.Source)

	family, ok := b.Config.Type.Family()
	if !ok {
		log.Info("record type does not hold an address, skipping")
		return nil
	}

	switch b.Config.Source {
	case SourceLocal:
		current := t.local.Current(ctx, family)
		b.Local.Value = current.String()
		if addr.IsPrivate(current) {
			log.Info("local address is private, skipping", "address", current)
			return nil
		}
		return t.publish(ctx, log, b)

	case SourceRouter:
		if family == addr.IPv6 {
			log.Info("IPv6 is not observed through the router, skipping")
			return nil
		}
		wan, realIP := t.router.WAN(ctx), t.router.Real(ctx)
		b.Local.Value = realIP.String()
		if wan != realIP || addr.IsPrivate(realIP) {
			return t.withdraw(ctx, log, b, wan, realIP)
		}
		return t.publish(ctx, log, b)
	}
	return nil
}

// publish writes the local value when the provider holds something else.
func (t *Task) publish(ctx context.Context, log logr.Logger, b *Board) error {
	if b.Remote != nil && b.Remote.Value == b.Local.Value {
		log.V(1).Info("record up to date", "value", b.Local.Value)
		return nil
	}

	previous := "<none>"
	if b.Remote != nil {
		previous = b.Remote.Value
	}
	log.Info("updating record", "from", previous, "to", b.Local.Value)

	err := t.provider.Set(ctx, b.Local)
	t.metrics.ObserveProviderCall(t.name, "set", err)
	if err != nil {
		log.Error(err, "unable to update record")
		err = fmt.Errorf("task %s: set %s %s: %w", t.name, b.Config.Name, b.Config.Type, err)
	}
	return errors.Join(err, t.fetch(ctx, b))
}

// withdraw deletes the record when the router sits behind NAT or only has
// a private address.
func (t *Task) withdraw(ctx context.Context, log logr.Logger, b *Board, wan, realIP netip.Addr) error {
	if b.Remote == nil || b.Remote.Value == "" {
		log.V(1).Info("address unusable and no record to remove", "wan", wan, "real", realIP)
		return nil
	}
	log.Info("address unusable, removing record", "wan", wan, "real", realIP, "value", b.Remote.Value)

	err := t.provider.Delete(ctx, b.Config.Name, b.Config.Type)
	t.metrics.ObserveProviderCall(t.name, "delete", err)
	if err != nil {
		log.Error(err, "unable to remove record")
		err = fmt.Errorf("task %s: delete %s %s: %w", t.name, b.Config.Name, b.Config.Type, err)
	}
	return errors.Join(err, t.fetch(ctx, b))
}

// fetch replaces the board's remote state with the provider's answer.
// A failed read leaves the board without a remote record.
func (t *Task) fetch(ctx context.Context, b *Board) error {
	rec, err := t.provider.Get(ctx, b.Config.Name, b.Config.Type)
	t.metrics.ObserveProviderCall(t.name, "get", err)
	if err != nil {
		t.log.Error(err, "unable to fetch record, assuming absent", "record", b.Config.Name, "type", b.Config.Type)
		b.Remote = nil
		return fmt.Errorf("task %s: get %s %s: %w", t.name, b.Config.Name, b.Config.Type, err)
	}
	if rec == nil {
		t.log.Info("provider holds no record", "record", b.Config.Name, "type", b.Config.Type)
	}
	b.Remote = rec
	return nil
}
