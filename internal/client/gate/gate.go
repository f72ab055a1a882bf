// Package gate follows one media record from the client side: it locks
// interaction while the record is processing, reports coarse progress and
// releases the lock once the record settles.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

var (
	ErrDeleteNotAllowed = errors.New("delete is only available for failed items")
	ErrStreamClosed     = errors.New("subscription closed before the item settled")
	ErrClosed           = errors.New("gate is closed")
)

type Phase string

const (
	PhaseUnknown  Phase = "unknown"
	PhaseInFlight Phase = "in_flight"
	PhaseReady    Phase = "ready"
	PhaseFailed   Phase = "failed"
	PhaseGone     Phase = "gone"
)

// Settled reports whether no further snapshot can move the gate on its own.
func (p Phase) Settled() bool {
	return p == PhaseReady || p == PhaseFailed || p == PhaseGone
}

type View string

const (
	ViewLoading    View = "loading"
	ViewProgress   View = "progress"
	ViewPlayable   View = "playable"
	ViewDeleteOnly View = "delete_only"
	ViewGone       View = "gone"
)

var phaseViews = map[Phase]View{
	PhaseUnknown:  ViewLoading,
	PhaseInFlight: ViewProgress,
	PhaseReady:    ViewPlayable,
	PhaseFailed:   ViewDeleteOnly,
	PhaseGone:     ViewGone,
}

// signal is what a snapshot says about the record.
type signal int

const (
	signalInFlight signal = iota
	signalReady
	signalFailed
	signalGone
)

// transitions is the full gate table. Pairs that are absent keep the
// current phase.
var transitions = map[Phase]map[signal]Phase{
	PhaseUnknown: {
		signalInFlight: PhaseInFlight,
		signalReady:    PhaseReady,
		signalFailed:   PhaseFailed,
		signalGone:     PhaseGone,
	},
	PhaseInFlight: {
		signalReady:  PhaseReady,
		signalFailed: PhaseFailed,
		signalGone:   PhaseGone,
	},
	PhaseReady: {
		signalGone: PhaseGone,
	},
	PhaseFailed: {
		signalReady: PhaseReady,
		signalGone:  PhaseGone,
	},
	PhaseGone: {},
}

func next(from Phase, sig signal) Phase {
	if to, ok := transitions[from][sig]; ok {
		return to
	}
	return from
}

func classify(s models.Snapshot) signal {
	if !s.Exists || s.Item == nil {
		return signalGone
	}
	switch s.Item.Status {
	case models.ReadyStatus:
		return signalReady
	case models.FailedStatus:
		return signalFailed
	case models.DeletedStatus:
		return signalGone
	default:
		return signalInFlight
	}
}

// Lock suppresses user interaction around the item while it processes.
type Lock interface {
	Acquire()
	Release()
}

// PendingCache is local bookkeeping of items the user is waiting on.
type PendingCache interface {
	Forget(itemID string)
}

// Remover deletes the canonical record.
type Remover interface {
	DeleteItem(ctx context.Context, id string) error
}

type State struct {
	Phase    Phase
	View     View
	Progress int
	Stage    string
	Item     *models.MediaItem
}

type Config struct {
	ItemID     string
	Vocabulary []string
	Lock       Lock
	Pending    PendingCache
	Remover    Remover
	// OnReady is called once, the first time the item is seen ready.
	OnReady func(item models.MediaItem)
	// OnChange is called after every snapshot with the resulting state.
	OnChange func(State)
	Logger   zerolog.Logger
}

type Gate struct {
	itemID     string
	vocabulary []string
	lock       Lock
	pending    PendingCache
	remover    Remover
	onReady    func(models.MediaItem)
	onChange   func(State)
	logger     zerolog.Logger

	mu        sync.Mutex
	state     State
	locked    bool
	completed bool
	closed    bool
}

func New(cfg Config) (*Gate, error) {
	if strings.TrimSpace(cfg.ItemID) == "" {
		return nil, fmt.Errorf("item id is required")
	}
	vocab := cfg.Vocabulary
	if len(vocab) == 0 {
		vocab = DefaultVocabulary
	}
	return &Gate{
		itemID:     cfg.ItemID,
		vocabulary: vocab,
		lock:       cfg.Lock,
		pending:    cfg.Pending,
		remover:    cfg.Remover,
		onReady:    cfg.OnReady,
		onChange:   cfg.OnChange,
		logger:     cfg.Logger.With().Str("component", "gate").Str("media_id", cfg.ItemID).Logger(),
		state:      State{Phase: PhaseUnknown, View: ViewLoading},
	}, nil
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Observe applies one snapshot and returns the resulting state. Snapshots
// for other items and snapshots after Close are ignored.
func (g *Gate) Observe(s models.Snapshot) State {
	g.mu.Lock()
	if g.closed || (s.Item != nil && s.Item.ID != g.itemID) {
		st := g.state
		g.mu.Unlock()
		return st
	}

	from := g.state.Phase
	to := next(from, classify(s))

	var fx effects
	if to == PhaseInFlight && !g.locked {
		g.locked = true
		fx.acquire = true
	}
	if to != PhaseInFlight && g.locked {
		g.locked = false
		fx.release = true
	}
	if to == PhaseReady && !g.completed {
		g.completed = true
		fx.forget = true
		if s.Item != nil {
			item := *s.Item.Clone()
			fx.ready = &item
		}
	}

	g.state = g.stateFor(to, s)
	st := g.state
	g.mu.Unlock()

	if from != to {
		g.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("gate transition")
	}
	g.apply(fx)
	if g.onChange != nil {
		g.onChange(st)
	}
	return st
}

func (g *Gate) stateFor(phase Phase, s models.Snapshot) State {
	st := State{Phase: phase, View: phaseViews[phase]}
	if s.Exists && s.Item != nil {
		st.Item = s.Item.Clone()
		st.Stage = s.Item.Stage
	} else if phase != PhaseGone {
		st.Item = g.state.Item
		st.Stage = g.state.Stage
	}
	switch phase {
	case PhaseInFlight:
		st.Progress = Progress(st.Stage, g.vocabulary)
	case PhaseReady:
		st.Progress = 100
	}
	return st
}

// effects are collected under the mutex and run after it is released so
// callbacks may call back into the gate.
type effects struct {
	acquire bool
	release bool
	forget  bool
	ready   *models.MediaItem
}

func (g *Gate) apply(fx effects) {
	if fx.acquire && g.lock != nil {
		g.lock.Acquire()
	}
	if fx.release && g.lock != nil {
		g.lock.Release()
	}
	if fx.forget && g.pending != nil {
		g.pending.Forget(g.itemID)
	}
	if fx.ready != nil && g.onReady != nil {
		g.onReady(*fx.ready)
	}
}

// Run feeds snapshots from a subscription into the gate until the item
// settles, the subscription ends or ctx is done.
func (g *Gate) Run(ctx context.Context, snapshots <-chan models.Snapshot) (State, error) {
	for {
		select {
		case <-ctx.Done():
			return g.State(), ctx.Err()
		case s, ok := <-snapshots:
			if !ok {
				st := g.State()
				if st.Phase.Settled() {
					return st, nil
				}
				return st, ErrStreamClosed
			}
			st := g.Observe(s)
			if g.isClosed() {
				return st, ErrClosed
			}
			if st.Phase.Settled() {
				return st, nil
			}
		}
	}
}

// Delete removes the record. It is the only action a failed item offers.
func (g *Gate) Delete(ctx context.Context) error {
	g.mu.Lock()
	phase := g.state.Phase
	closed := g.closed
	g.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if phase != PhaseFailed {
		return fmt.Errorf("%w (phase %s)", ErrDeleteNotAllowed, phase)
	}
	if g.remover == nil {
		return fmt.Errorf("no remover configured")
	}
	if err := g.remover.DeleteItem(ctx, g.itemID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("delete item: %w", err)
	}

	g.Observe(models.Snapshot{Exists: false})
	return nil
}

// Close releases the lock if it is still held. Safe to call more than once.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	release := g.locked
	g.locked = false
	g.mu.Unlock()

	g.apply(effects{release: release})
}

func (g *Gate) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
