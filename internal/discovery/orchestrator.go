// Package discovery runs the scanners and merges what they find into the
// registry.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"camerabridge/internal/adapter"
	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
)

// Discovery lifecycle events
const (
	EventDiscoveryStarted   = "discovery_started"
	EventDiscoveryCompleted = "discovery_completed"
	EventDiscoverySkipped   = "discovery_skipped"
)

// ErrAlreadyRunning is returned by StartPeriodic when a schedule exists
var ErrAlreadyRunning = errors.New("periodic discovery already running")

// Merger is the registry surface the orchestrator needs
type Merger interface {
	MergeCandidates(ctx context.Context, candidates []domain.Candidate) ([]domain.Device, error)
	List() []domain.Device
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithFallback sets the scanner that only runs when the primaries found
// nothing
func WithFallback(s adapter.Scanner) Option {
	return func(o *Orchestrator) {
		o.fallback = s
	}
}

// WithScannerTimeout bounds each scanner on top of its own window
func WithScannerTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.scannerTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logging.OrNop(l)
	}
}

// WithPublisher sets the destination for lifecycle events
func WithPublisher(pub adapter.EventPublisher) Option {
	return func(o *Orchestrator) {
		o.publisher = pub
	}
}

// WithClock overrides the result timestamp source
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// call is one in-flight run that later callers join
type call struct {
	done   chan struct{}
	result domain.DiscoveryResult
	err    error
}

// Orchestrator runs discovery. At most one run is in flight; concurrent
// RunDiscovery callers share it and periodic ticks that land on it skip.
type Orchestrator struct {
	registry       Merger
	primary        []adapter.Scanner
	fallback       adapter.Scanner
	scannerTimeout time.Duration
	logger         *zap.Logger
	publisher      adapter.EventPublisher
	now            func() time.Time

	mu       sync.Mutex
	inflight *call
	last     *domain.DiscoveryResult

	schedMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an orchestrator. Primary scanners run concurrently and their
// candidates are merged in the order given.
func New(registry Merger, primary []adapter.Scanner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:       registry,
		primary:        primary,
		scannerTimeout: 30 * time.Second,
		logger:         zap.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Methods lists the configured scanner tags in merge order
func (o *Orchestrator) Methods() []domain.Method {
	var out []domain.Method
	for _, s := range o.primary {
		out = append(out, s.Name())
	}
	if o.fallback != nil {
		out = append(out, o.fallback.Name())
	}
	return out
}

// InProgress reports whether a run is in flight
func (o *Orchestrator) InProgress() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inflight != nil
}

// LastResult returns the most recent completed run, if any
func (o *Orchestrator) LastResult() (domain.DiscoveryResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return domain.DiscoveryResult{}, false
	}
	return *o.last, true
}

// RunDiscovery runs every scanner and merges the result. Scanner failures
// are logged and count as empty results. The returned error is non-nil
// only when the registry could not persist newly added devices; the
// result is valid either way.
func (o *Orchestrator) RunDiscovery(ctx context.Context) (domain.DiscoveryResult, error) {
	o.mu.Lock()
	if c := o.inflight; c != nil {
		o.mu.Unlock()
		select {
		case <-c.done:
			return c.result, c.err
		case <-ctx.Done():
			return o.currentResult(o.primaryMethod(), 0), nil
		}
	}
	c := &call{done: make(chan struct{})}
	o.inflight = c
	o.mu.Unlock()

	c.result, c.err = o.run(ctx)

	o.mu.Lock()
	o.inflight = nil
	res := c.result
	o.last = &res
	o.mu.Unlock()
	close(c.done)

	return c.result, c.err
}

// tryRun is the periodic entry point: it skips when a run is in flight
func (o *Orchestrator) tryRun(ctx context.Context) {
	if o.InProgress() {
		o.logger.Info("discovery still running, skipping scheduled run")
		o.publish(EventDiscoverySkipped, map[string]any{"reason": "in_progress"})
		return
	}
	if _, err := o.RunDiscovery(ctx); err != nil {
		o.logger.Error("scheduled discovery could not persist", zap.Error(err))
	}
}

func (o *Orchestrator) run(ctx context.Context) (domain.DiscoveryResult, error) {
	start := o.now()
	o.logger.Info("starting camera discovery", zap.Any("methods", o.Methods()))
	o.publish(EventDiscoveryStarted, map[string]any{"methods": o.Methods()})

	method := o.primaryMethod()

	candidates := o.runPrimaries(ctx)
	if len(candidates) == 0 && o.fallback != nil && ctx.Err() == nil {
		o.logger.Info("no devices found, trying fallback", zap.String("method", string(o.fallback.Name())))
		candidates = o.runScanner(ctx, o.fallback)
		method = o.fallback.Name()
	}

	added, err := o.registry.MergeCandidates(ctx, candidates)
	for _, d := range added {
		o.logger.Info("added new camera",
			zap.String("name", d.Name),
			zap.String("address", d.Address),
			zap.Int("channel", d.Channel))
	}
	if err != nil {
		o.logger.Error("failed to persist discovered devices", zap.Error(err))
		err = fmt.Errorf("discovery merge: %w", err)
	}

	result := o.currentResult(method, len(added))
	o.logger.Info("discovery completed",
		zap.Duration("duration", o.now().Sub(start)),
		zap.Int("candidates", len(candidates)),
		zap.Int("added", len(added)),
		zap.Int("total", len(result.Devices)))
	o.publish(EventDiscoveryCompleted, map[string]any{
		"method":     method,
		"candidates": len(candidates),
		"added":      len(added),
		"total":      len(result.Devices),
	})
	return result, err
}

// runPrimaries runs the primary scanners in parallel and concatenates
// their output in configured order
func (o *Orchestrator) runPrimaries(ctx context.Context) []domain.Candidate {
	results := make([][]domain.Candidate, len(o.primary))

	var g errgroup.Group
	for i, s := range o.primary {
		g.Go(func() error {
			results[i] = o.runScanner(ctx, s)
			return nil
		})
	}
	g.Wait()

	var all []domain.Candidate
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// runScanner isolates one scanner: timeout, error and panic all become an
// empty result
func (o *Orchestrator) runScanner(ctx context.Context, s adapter.Scanner) []domain.Candidate {
	name := s.Name()
	ctx, cancel := context.WithTimeout(ctx, o.scannerTimeout)
	defer cancel()

	type outcome struct {
		found []domain.Candidate
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("scanner panicked",
					zap.String("method", string(name)),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				ch <- outcome{err: fmt.Errorf("%w: panic: %v", domain.ErrNetworkProbe, r)}
			}
		}()
		f, err := s.Scan(ctx)
		ch <- outcome{found: f, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			o.logger.Warn("discovery method failed",
				zap.String("method", string(name)),
				zap.Error(out.err))
			return nil
		}
		o.logger.Info("discovery method finished",
			zap.String("method", string(name)),
			zap.Int("found", len(out.found)))
		return out.found
	case <-ctx.Done():
		o.logger.Warn("discovery method timed out", zap.String("method", string(name)))
		return nil
	}
}

// primaryMethod is the tag a run carries unless the fallback produced it
func (o *Orchestrator) primaryMethod() domain.Method {
	if len(o.primary) > 0 {
		return o.primary[0].Name()
	}
	if o.fallback != nil {
		return o.fallback.Name()
	}
	return domain.MethodSADP
}

func (o *Orchestrator) currentResult(method domain.Method, added int) domain.DiscoveryResult {
	return domain.DiscoveryResult{
		Devices:   o.registry.List(),
		Timestamp: o.now(),
		Method:    method,
		Added:     added,
	}
}

func (o *Orchestrator) publish(eventType string, payload map[string]any) {
	if o.publisher != nil {
		o.publisher.PublishDiscoveryEvent(eventType, payload)
	}
}

// StartPeriodic runs discovery once immediately and then every interval
// until StopPeriodic or ctx cancellation. A non-positive interval runs
// once.
func (o *Orchestrator) StartPeriodic(ctx context.Context, interval time.Duration) error {
	o.schedMu.Lock()
	defer o.schedMu.Unlock()

	if o.cancel != nil {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		o.tryRun(ctx)
		if interval <= 0 {
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				o.logger.Info("stopping periodic discovery")
				return
			case <-ticker.C:
				o.tryRun(ctx)
			}
		}
	}()

	o.logger.Info("auto-discovery scheduled", zap.Duration("interval", interval))
	return nil
}

// StopPeriodic cancels the schedule and waits for the loop to exit. It is
// safe to call when nothing is scheduled.
func (o *Orchestrator) StopPeriodic() {
	o.schedMu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.schedMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	o.wg.Wait()
	o.logger.Info("auto-discovery stopped")
}
