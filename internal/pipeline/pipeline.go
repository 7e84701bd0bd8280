// Package pipeline supervises the discovery-to-trade flow: one monitor task
// feeding a bounded queue, a fixed pool of workers running analysis and
// execution, and a lifecycle driven by explicit start/stop commands.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/ledger"
	"solana-sniper/internal/monitor"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/safety"
)

const (
	DefaultWorkerCount   = 4
	DefaultFlushInterval = 30 * time.Second
)

var (
	// ErrAlreadyRunning is returned by Start when the pipeline is live.
	ErrAlreadyRunning = errors.New("pipeline already running")
	// ErrSupervisorClosed is returned when the supervising loop has exited.
	ErrSupervisorClosed = errors.New("supervisor closed")
)

// Status is the operator-facing pipeline snapshot.
type Status struct {
	Running      bool
	Uptime       time.Duration
	QueueDepth   int
	MonitorState string
	BuyingPaused bool
}

// Options configures a Supervisor. NewMonitor is a factory because a monitor
// cannot be reused across start/stop cycles: its event channel closes when
// its Run returns.
type Options struct {
	NewMonitor func() *monitor.Monitor
	Analyzer   *safety.Analyzer
	Engine     *execution.Engine
	Ledger     *ledger.Ledger

	// Intent is the per-event trade template; discovery fields are filled
	// in by the worker.
	Intent domain.TradeIntent

	WorkerCount   int
	FlushInterval time.Duration

	Logger  *log.Logger
	Metrics *observability.Metrics
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdStatus
)

type command struct {
	kind  commandKind
	err   chan error
	state chan Status
}

// session is one start-to-stop run of the monitor plus workers.
type session struct {
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	events    <-chan domain.PoolCreationEvent
	startedAt time.Time
}

// Supervisor owns the pipeline lifecycle. All state transitions happen on
// the Run goroutine; Start, Stop and Status are command round-trips.
type Supervisor struct {
	newMonitor func() *monitor.Monitor
	analyzer   *safety.Analyzer
	engine     *execution.Engine
	ledger     *ledger.Ledger
	intent     domain.TradeIntent

	workerCount   int
	flushInterval time.Duration

	logger  *log.Logger
	metrics *observability.Metrics

	commands chan command
	fatal    chan error
	done     chan struct{}
}

func New(opts Options) (*Supervisor, error) {
	if opts.NewMonitor == nil {
		return nil, errors.New("monitor factory is required")
	}
	if opts.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("ledger is required")
	}

	s := &Supervisor{
		newMonitor:    opts.NewMonitor,
		analyzer:      opts.Analyzer,
		engine:        opts.Engine,
		ledger:        opts.Ledger,
		intent:        opts.Intent,
		workerCount:   opts.WorkerCount,
		flushInterval: opts.FlushInterval,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		commands:      make(chan command),
		fatal:         make(chan error, 1),
		done:          make(chan struct{}),
	}
	if s.workerCount <= 0 {
		s.workerCount = DefaultWorkerCount
	}
	if s.flushInterval <= 0 {
		s.flushInterval = DefaultFlushInterval
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	return s, nil
}

// Run is the supervising loop. It owns the running/stopped state and serves
// commands until ctx is cancelled, then shuts any live session down.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)

	var (
		current *session
		mon     *monitor.Monitor
	)
	stop := func() {
		if current == nil {
			return
		}
		current.cancel()
		current.wg.Wait()
		current = nil
		mon = nil
		s.flushArchive()
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return ctx.Err()

		case err := <-s.fatal:
			s.logger.Printf("[pipeline] fatal: %v; pipeline stopped, explicit start required", err)
			stop()

		case cmd := <-s.commands:
			switch cmd.kind {
			case cmdStart:
				if current != nil {
					cmd.err <- ErrAlreadyRunning
					continue
				}
				mon = s.newMonitor()
				current = s.startSession(ctx, mon)
				s.logger.Printf("[pipeline] started with %d workers", s.workerCount)
				cmd.err <- nil

			case cmdStop:
				if current != nil {
					s.logger.Printf("[pipeline] stopping")
					stop()
				}
				cmd.err <- nil

			case cmdStatus:
				st := Status{BuyingPaused: s.engine.Paused()}
				if current != nil {
					st.Running = true
					st.Uptime = time.Since(current.startedAt)
					st.QueueDepth = len(current.events)
					st.MonitorState = mon.State().String()
				} else {
					st.MonitorState = monitor.StateDisconnected.String()
				}
				cmd.state <- st
			}
		}
	}
}

// startSession launches the monitor, the worker pool and the archive flusher
// under a cancelable child context.
func (s *Supervisor) startSession(ctx context.Context, mon *monitor.Monitor) *session {
	runCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		cancel:    cancel,
		events:    mon.Events(),
		startedAt: time.Now(),
	}

	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		if err := mon.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case s.fatal <- err:
			default:
			}
		}
	}()

	for i := 0; i < s.workerCount; i++ {
		sess.wg.Add(1)
		go func() {
			defer sess.wg.Done()
			s.worker(runCtx, sess.events)
		}()
	}

	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		s.flusher(runCtx)
	}()

	return sess
}

// worker drains the discovery queue, assessing each candidate and executing
// those that clear the buy verdict.
func (s *Supervisor) worker(ctx context.Context, events <-chan domain.PoolCreationEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if s.metrics != nil {
				s.metrics.QueueDepth.Set(float64(len(events)))
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Supervisor) handleEvent(ctx context.Context, ev domain.PoolCreationEvent) {
	assessment, err := s.analyzer.Assess(ctx, ev.Mint, ev.Pool, ev.ProgramID)
	if err != nil {
		s.logger.Printf("[pipeline] assess mint=%s: %v", ev.Mint, err)
		return
	}
	if assessment.Verdict != domain.VerdictBuy {
		s.logger.Printf("[pipeline] mint=%s verdict=%s score=%d, not buying",
			ev.Mint, assessment.Verdict, assessment.Score)
		return
	}

	intent := s.intent
	intent.Mint = ev.Mint
	intent.Pool = ev.Pool
	intent.DiscoveredAtMs = ev.DiscoveredAt
	intent.DiscoverySig = ev.TxSignature
	intent.DiscoverySlot = ev.Slot

	attempt, err := s.engine.ExecuteBuy(ctx, &ev, assessment, intent)
	if err != nil {
		switch {
		case errors.Is(err, execution.ErrAlreadyInFlight),
			errors.Is(err, execution.ErrPositionExists),
			errors.Is(err, execution.ErrScoreTooLow),
			errors.Is(err, execution.ErrPaused):
			s.logger.Printf("[pipeline] mint=%s buy skipped: %v", ev.Mint, err)
		default:
			s.logger.Printf("[pipeline] mint=%s buy failed: %v", ev.Mint, err)
		}
		return
	}
	s.logger.Printf("[pipeline] mint=%s attempt %s finished %s", ev.Mint, attempt.AttemptID[:8], attempt.Status)
}

// flusher periodically pushes terminal attempts to the analytics archive.
func (s *Supervisor) flusher(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flushArchive()
		}
	}
}

func (s *Supervisor) flushArchive() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.ledger.FlushArchive(ctx); err != nil {
		s.logger.Printf("[pipeline] archive flush: %v", err)
	}
}

// Start begins a pipeline session. Returns ErrAlreadyRunning if one is live.
func (s *Supervisor) Start(ctx context.Context) error {
	return s.roundTrip(ctx, cmdStart)
}

// Stop gracefully shuts the live session down. A no-op when stopped.
func (s *Supervisor) Stop(ctx context.Context) error {
	return s.roundTrip(ctx, cmdStop)
}

// Status reports the lifecycle snapshot.
func (s *Supervisor) Status(ctx context.Context) (Status, error) {
	cmd := command{kind: cmdStatus, state: make(chan Status, 1)}
	select {
	case s.commands <- cmd:
	case <-s.done:
		return Status{}, ErrSupervisorClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case st := <-cmd.state:
		return st, nil
	case <-s.done:
		return Status{}, ErrSupervisorClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Positions lists currently open positions.
func (s *Supervisor) Positions(ctx context.Context) ([]*domain.Position, error) {
	return s.ledger.OpenPositions(ctx)
}

// RecentAttempts lists the most recent trade attempts, newest first.
func (s *Supervisor) RecentAttempts(ctx context.Context, limit int) ([]*domain.TradeAttempt, error) {
	return s.ledger.RecentAttempts(ctx, limit)
}

// Performance returns aggregate attempt statistics.
func (s *Supervisor) Performance(ctx context.Context) (*ledger.PerformanceSummary, error) {
	return s.ledger.Performance(ctx)
}

func (s *Supervisor) roundTrip(ctx context.Context, kind commandKind) error {
	cmd := command{kind: kind, err: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrSupervisorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.err:
		return err
	case <-s.done:
		return ErrSupervisorClosed
	case <-ctx.Done():
		return fmt.Errorf("await %v reply: %w", kind, ctx.Err())
	}
}
