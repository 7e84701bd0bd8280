package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/solana"
)

// State is the connection state of the monitor.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateStreaming
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateStreaming:
		return "STREAMING"
	default:
		return "UNKNOWN"
	}
}

// ErrReconnectBudgetExhausted is returned when the monitor cannot re-establish
// the subscription after the configured number of consecutive attempts.
// It is fatal for the pipeline; the operator restarts explicitly.
var ErrReconnectBudgetExhausted = errors.New("reconnect budget exhausted")

// Options configures a Monitor.
type Options struct {
	Dialer   solana.LogsDialer
	RPC      solana.RPCClient // fetches account keys when logs alone cannot decode the pool
	Programs []string
	Denylist map[string]bool // base mints never treated as new tokens
	Parsers  []PoolParser    // defaults to DefaultParsers()

	ReconnectBudget int           // consecutive failed reconnects before fatal (default 10)
	BaseDelay       time.Duration // initial backoff (default 1s)
	MaxDelay        time.Duration // backoff ceiling (default 30s)
	QueueSize       int           // event channel buffer (default 256)

	Logger  *log.Logger
	Metrics *observability.Metrics
}

// Monitor maintains the logs subscription and emits PoolCreationEvents.
// Connection lifecycle: Disconnected -> Connecting -> Subscribed -> Streaming,
// falling back to Connecting on any transport error.
type Monitor struct {
	dialer   solana.LogsDialer
	rpc      solana.RPCClient
	programs []string
	denylist map[string]bool
	parsers  []PoolParser

	reconnectBudget int
	baseDelay       time.Duration
	maxDelay        time.Duration

	events chan domain.PoolCreationEvent
	state  atomic.Int32

	// seenPools dedupes within one connection lifetime. Duplicate emission
	// across reconnects is tolerated downstream by the per-mint attempt marker.
	seenPools map[string]bool

	logger  *log.Logger
	metrics *observability.Metrics
}

// New creates a Monitor from options.
func New(opts Options) *Monitor {
	parsers := opts.Parsers
	if parsers == nil {
		parsers = DefaultParsers()
	}
	reconnectBudget := opts.ReconnectBudget
	if reconnectBudget == 0 {
		reconnectBudget = 10
	}
	baseDelay := opts.BaseDelay
	if baseDelay == 0 {
		baseDelay = 1 * time.Second
	}
	maxDelay := opts.MaxDelay
	if maxDelay == 0 {
		maxDelay = 30 * time.Second
	}
	queueSize := opts.QueueSize
	if queueSize == 0 {
		queueSize = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Monitor{
		dialer:          opts.Dialer,
		rpc:             opts.RPC,
		programs:        opts.Programs,
		denylist:        opts.Denylist,
		parsers:         parsers,
		reconnectBudget: reconnectBudget,
		baseDelay:       baseDelay,
		maxDelay:        maxDelay,
		events:          make(chan domain.PoolCreationEvent, queueSize),
		seenPools:       make(map[string]bool),
		logger:          logger,
		metrics:         opts.Metrics,
	}
}

// Events returns the discovery channel. Closed when Run returns.
func (m *Monitor) Events() <-chan domain.PoolCreationEvent {
	return m.events
}

// State returns the current connection state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

func (m *Monitor) setState(s State) {
	m.state.Store(int32(s))
}

// Run maintains the subscription until ctx is cancelled or the reconnect
// budget is exhausted. It always closes the events channel before returning.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.events)
	defer m.setState(StateDisconnected)

	failures := 0
	delay := m.baseDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.setState(StateConnecting)
		conn, err := m.dialer.DialAndSubscribe(ctx, solana.LogsFilter{Mentions: m.programs})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if m.metrics != nil {
				m.metrics.WSReconnects.Inc()
			}
			if failures >= m.reconnectBudget {
				m.logger.Printf("[monitor] giving up after %d failed connects: %v", failures, err)
				return fmt.Errorf("%w: last error: %v", ErrReconnectBudgetExhausted, err)
			}
			m.logger.Printf("[monitor] connect failed (%d/%d), retrying in ~%v: %v",
				failures, m.reconnectBudget, delay, err)
			if !sleepJittered(ctx, delay) {
				return ctx.Err()
			}
			delay = backoff(delay, m.maxDelay)
			continue
		}

		failures = 0
		delay = m.baseDelay
		m.seenPools = make(map[string]bool)
		m.setState(StateSubscribed)
		m.logger.Printf("[monitor] subscribed to %d programs", len(m.programs))

		streamErr := m.stream(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Transport error: back to Connecting.
		m.logger.Printf("[monitor] stream interrupted: %v", streamErr)
		if m.metrics != nil {
			m.metrics.WSReconnects.Inc()
		}
	}
}

// stream reads notifications until a transport error or cancellation.
func (m *Monitor) stream(ctx context.Context, conn solana.LogsConn) error {
	for {
		notif, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		m.setState(StateStreaming)
		m.handleNotification(ctx, notif)
	}
}

// handleNotification decodes one log entry. Malformed entries are logged and
// skipped; they never interrupt the stream.
func (m *Monitor) handleNotification(ctx context.Context, notif solana.LogNotification) {
	// Failed transactions cannot have created a pool.
	if notif.Err != nil {
		return
	}

	for _, parser := range m.parsers {
		if !parser.Matches(notif.Logs) {
			continue
		}

		accountKeys, err := m.fetchAccountKeys(ctx, notif.Signature)
		if err != nil {
			m.logger.Printf("[monitor] skip %s: account keys unavailable: %v", notif.Signature, err)
			if m.metrics != nil {
				m.metrics.EventsSkipped.WithLabelValues("rpc_error").Inc()
			}
			return
		}

		event := parser.Parse(notif.Logs, accountKeys, notif.Signature, notif.Slot, time.Now().UnixMilli())
		if event == nil {
			m.logger.Printf("[monitor] skip %s: malformed pool creation", notif.Signature)
			if m.metrics != nil {
				m.metrics.EventsSkipped.WithLabelValues("malformed").Inc()
			}
			return
		}

		m.emit(ctx, *event)
		return
	}
}

// emit applies the denylist and per-connection dedup, then pushes the event.
func (m *Monitor) emit(ctx context.Context, event domain.PoolCreationEvent) {
	// A denylisted mint on the "new token" side means this is a routine pool
	// between major assets, not a launch.
	if m.denylist[event.Mint] {
		if m.denylist[event.BaseMint] {
			if m.metrics != nil {
				m.metrics.EventsSkipped.WithLabelValues("denylist").Inc()
			}
			return
		}
		// Pair is flipped: the non-denylisted side is the new token.
		event.Mint, event.BaseMint = event.BaseMint, event.Mint
	}

	if m.seenPools[event.Pool] {
		return
	}
	m.seenPools[event.Pool] = true

	if m.metrics != nil {
		m.metrics.EventsDiscovered.Inc()
	}
	m.logger.Printf("[monitor] new pool: mint=%s pool=%s program=%s", event.Mint, event.Pool, event.ProgramID)

	select {
	case m.events <- event:
	case <-ctx.Done():
	}
}

// fetchAccountKeys retrieves tx-level account keys needed by the parsers.
func (m *Monitor) fetchAccountKeys(ctx context.Context, signature string) ([]string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := m.rpc.GetTransaction(fetchCtx, signature)
	if err != nil {
		return nil, err
	}
	if tx == nil || tx.Message == nil {
		return nil, fmt.Errorf("transaction %s not found", signature)
	}
	return tx.Message.AccountKeys, nil
}

// backoff doubles the delay up to the ceiling.
func backoff(delay, max time.Duration) time.Duration {
	delay *= 2
	if delay > max {
		delay = max
	}
	return delay
}

// sleepJittered sleeps for delay/2 plus a random half, spreading reconnects
// so a provider outage does not produce a thundering herd. Returns false if
// ctx was cancelled during the sleep.
func sleepJittered(ctx context.Context, delay time.Duration) bool {
	jittered := delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))
	select {
	case <-time.After(jittered):
		return true
	case <-ctx.Done():
		return false
	}
}
