package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned while the breaker refuses outbound calls.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func (s State) gauge() float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}

// BreakerConfig tunes a Breaker. Zero values fall back to the defaults used
// for the payment gateway.
type BreakerConfig struct {
	// Name labels metrics and transition logs, e.g. "toyyibpay".
	Name string
	// Window is the number of outcomes inspected before the breaker may trip.
	Window int
	// FailureRatio trips the breaker once failures/Window reaches it.
	FailureRatio float64
	// Cooldown is how long the breaker stays open before a probe is let through.
	Cooldown time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Breaker guards a single downstream dependency. While half-open exactly one
// probe is in flight; its outcome closes or re-opens the circuit.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	outcomes []bool
	next     int
	filled   int
	openedAt time.Time
	probing  bool
}

// NewBreaker builds a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Window <= 0 {
		cfg.Window = 5
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = 0.5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	b := &Breaker{cfg: cfg, outcomes: make([]bool, cfg.Window)}
	breakerState.WithLabelValues(cfg.Name).Set(Closed.gauge())
	return b
}

// Name returns the dependency label.
func (b *Breaker) Name() string { return b.cfg.Name }

// State reports the current position without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow admits a call or returns ErrOpenCircuit. Once the cooldown has passed
// the first caller becomes the half-open probe.
func (b *Breaker) Allow(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrOpenCircuit
		}
		b.transitionLocked(ctx, HalfOpen)
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			return ErrOpenCircuit
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Record feeds the outcome of an admitted call back into the breaker.
func (b *Breaker) Record(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.transitionLocked(ctx, Closed)
		} else {
			b.transitionLocked(ctx, Open)
		}
		return
	}

	b.outcomes[b.next] = success
	b.next = (b.next + 1) % len(b.outcomes)
	if b.filled < len(b.outcomes) {
		b.filled++
	}
	if b.filled < len(b.outcomes) {
		return
	}
	failures := 0
	for _, ok := range b.outcomes {
		if !ok {
			failures++
		}
	}
	if float64(failures)/float64(len(b.outcomes)) >= b.cfg.FailureRatio {
		b.transitionLocked(ctx, Open)
	}
}

func (b *Breaker) transitionLocked(ctx context.Context, to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	switch to {
	case Open:
		b.openedAt = b.cfg.Now()
		breakerOpened.WithLabelValues(b.cfg.Name).Inc()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.next, b.filled = 0, 0
	breakerState.WithLabelValues(b.cfg.Name).Set(to.gauge())
	breakerTransitions.WithLabelValues(b.cfg.Name, from.String(), to.String()).Inc()

	evt := b.loggerFor(ctx).Info().
		Str("breaker", b.cfg.Name).
		Str("from_state", from.String()).
		Str("to_state", to.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &b.cfg.Logger
}
