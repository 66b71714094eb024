package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/agreement/internal/ir"
)

// Recorder persists a committed aggregate together with the events of the
// transition that produced it. Implemented by store.Store.
//
// If Record returns an error the transition is rejected and the in-memory
// snapshot is left unchanged.
type Recorder interface {
	Record(ctx context.Context, agg ir.Aggregate, events []ir.Event) error
}

// Observer receives every committed event in seq order for its aggregate.
// Observers run with the aggregate locked and must not call back into the
// Manager for the same action.
type Observer func(ir.Event)

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the wall-clock source. Default: WallClock.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithIDGenerator sets the identifier source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) { m.ids = g }
}

// WithArbitrator sets the arbitration boundary. Default: NopArbitrator.
func WithArbitrator(a Arbitrator) Option {
	return func(m *Manager) { m.arbitrator = a }
}

// WithRecorder persists every committed transition.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithObserver registers an event observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observers = append(m.observers, o) }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithSequencer sets the logical clock used to order events.
func WithSequencer(s *Sequencer) Option {
	return func(m *Manager) { m.seq = s }
}

// Manager is the action lifecycle manager. It owns every aggregate and is
// the only writer of action, delay and challenge state.
//
// Thread-safety model:
//   - All methods are safe for concurrent use.
//   - Transitions on one aggregate are serialized by its mutex.
//   - Transitions on different aggregates run in parallel.
//   - Reads load an immutable snapshot and never block on transitions.
type Manager struct {
	clock      Clock
	ids        IDGenerator
	seq        *Sequencer
	arbitrator Arbitrator
	recorder   Recorder
	observers  []Observer
	logger     *slog.Logger

	delays     DelayEngine
	challenges ChallengeEngine

	// mu guards the index maps only, never aggregate state.
	mu          sync.RWMutex
	actions     map[string]*aggregate
	byDelay     map[string]string // delay ID -> action ID
	byChallenge map[string]string // challenge ID -> action ID
}

type aggregate struct {
	mu   sync.Mutex
	snap atomic.Pointer[ir.Aggregate]
}

// errUnchanged marks a transition that legitimately did nothing, such as a
// tick before the due time.
var errUnchanged = errors.New("unchanged")

// transition mutates next in place and returns the events it produced.
type transition func(next *ir.Aggregate, now time.Time) ([]ir.Event, error)

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clock:       WallClock{},
		ids:         UUIDv7Generator{},
		seq:         NewSequencer(),
		arbitrator:  NopArbitrator{},
		logger:      slog.Default(),
		actions:     make(map[string]*aggregate),
		byDelay:     make(map[string]string),
		byChallenge: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.delays = NewDelayEngine(m.ids)
	m.challenges = NewChallengeEngine(m.ids)
	return m
}

// Now returns the manager's current clock reading.
func (m *Manager) Now() time.Time {
	return m.clock.Now()
}

// LastSeq returns the seq of the most recently issued event.
func (m *Manager) LastSeq() int64 {
	return m.seq.Current()
}

// Submit creates an action in SUBMITTED. A positive data.Delay attaches a
// SCHEDULED delay.
func (m *Manager) Submit(ctx context.Context, data ActionData) (ir.Action, error) {
	if err := data.Validate(); err != nil {
		m.logger.Warn("transition rejected", "op", "submit", "code", CodeOf(err), "error", err)
		return ir.Action{}, err
	}

	agg := &aggregate{}
	agg.mu.Lock()
	defer agg.mu.Unlock()

	now := m.clock.Now()
	next := ir.Aggregate{
		Action: ir.Action{
			ID:          m.ids.Generate(KindAction),
			Submitter:   strings.TrimSpace(data.Submitter),
			Payload:     data.Payload,
			State:       ir.ActionSubmitted,
			SubmittedAt: now,
		},
		Challenges: []ir.Challenge{},
	}
	events := []ir.Event{actionEvent(ir.EventActionSubmitted, next.Action, ir.ActionSubmitted)}

	if data.Delay > 0 {
		d, err := m.delays.Schedule(next.Action, now, data.Delay)
		if err != nil {
			return ir.Action{}, err
		}
		next.Action.DelayID = d.ID
		next.Delay = &d
		events = append(events, delayEvent(ir.EventDelayScheduled, d, d))
	}

	if err := m.commit(ctx, "submit", agg, &next, events, now); err != nil {
		return ir.Action{}, err
	}
	return next.Action, nil
}

// Challenge raises a challenge against a SUBMITTED action whose delay, if
// any, has not executed or stopped. The action moves to CHALLENGED and a
// SCHEDULED delay is paused until the challenge is resolved.
func (m *Manager) Challenge(ctx context.Context, actionID string, data ChallengeData) (ir.Challenge, error) {
	agg, err := m.lookupAction(actionID)
	if err != nil {
		return ir.Challenge{}, err
	}
	next, err := m.apply(ctx, agg, "challenge", time.Time{}, func(a *ir.Aggregate, now time.Time) ([]ir.Event, error) {
		if a.Action.State != ir.ActionSubmitted {
			return nil, NewInvalidStateError(KindAction, a.Action.ID, "challenge", a.Action.State)
		}
		if a.Delay != nil && a.Delay.State.Terminal() {
			return nil, NewInvalidStateError(KindDelay, a.Delay.ID, "challenge an action with", a.Delay.State)
		}
		c, err := m.challenges.Open(a.Action, data, now)
		if err != nil {
			return nil, err
		}

		events := []ir.Event{challengeEvent(ir.EventChallengeOpened, ir.ChallengeWaiting, c)}
		a.Challenges = append(a.Challenges, c)
		a.Action.ChallengeID = c.ID
		a.Action.ChallengeCount++
		a.Action.State = ir.ActionChallenged
		events = append(events, actionEvent(ir.EventActionChallenged, a.Action, ir.ActionSubmitted))

		if a.Delay != nil && a.Delay.State == ir.DelayScheduled {
			paused, err := m.delays.Pause(*a.Delay, now)
			if err != nil {
				return nil, err
			}
			events = append(events, delayEvent(ir.EventDelayPaused, *a.Delay, paused))
			a.Delay = &paused
		}
		return events, nil
	})
	if err != nil {
		return ir.Challenge{}, err
	}
	return *next.Current(), nil
}

// Settle resolves a WAITING challenge without arbitration.
func (m *Manager) Settle(ctx context.Context, challengeID string) (ir.Challenge, error) {
	return m.updateChallenge(ctx, challengeID, "settle", func(c ir.Challenge, now time.Time) (ir.Challenge, ir.EventKind, error) {
		next, err := m.challenges.Settle(c, now)
		return next, ir.EventChallengeSettled, err
	})
}

// Dispute escalates a WAITING challenge to DISPUTED, attaches a MISSING
// ruling and requests a ruling from the arbitrator. If the request fails
// the challenge stays WAITING.
func (m *Manager) Dispute(ctx context.Context, challengeID string) (ir.Challenge, error) {
	agg, err := m.lookupChallenge(challengeID)
	if err != nil {
		return ir.Challenge{}, err
	}
	next, err := m.apply(ctx, agg, "dispute", time.Time{}, func(a *ir.Aggregate, now time.Time) ([]ir.Event, error) {
		c := findChallenge(a, challengeID)
		disputed, err := m.challenges.Dispute(*c, now)
		if err != nil {
			return nil, err
		}
		if err := m.arbitrator.RequestRuling(ctx, challengeID, disputeContext(a, disputed)); err != nil {
			return nil, fmt.Errorf("request ruling: %w", err)
		}
		prev := c.State
		*c = disputed
		return []ir.Event{challengeEvent(ir.EventChallengeDisputed, prev, disputed)}, nil
	})
	if err != nil {
		return ir.Challenge{}, err
	}
	return *findChallenge(&next, challengeID), nil
}

// RequestArbitration re-sends the ruling request for a DISPUTED challenge
// that has no ruling yet. The engine never retries on its own.
func (m *Manager) RequestArbitration(ctx context.Context, challengeID string) error {
	agg, err := m.lookupChallenge(challengeID)
	if err != nil {
		return err
	}
	_, err = m.apply(ctx, agg, "request arbitration", time.Time{}, func(a *ir.Aggregate, _ time.Time) ([]ir.Event, error) {
		c := findChallenge(a, challengeID)
		if c.State != ir.ChallengeDisputed {
			return nil, NewInvalidStateError(KindChallenge, c.ID, "request arbitration for", c.State)
		}
		if err := m.arbitrator.RequestRuling(ctx, challengeID, disputeContext(a, *c)); err != nil {
			return nil, fmt.Errorf("request ruling: %w", err)
		}
		return nil, errUnchanged
	})
	return err
}

// ApplyRuling resolves a DISPUTED challenge with the arbitrator's ruling.
func (m *Manager) ApplyRuling(ctx context.Context, challengeID string, ruling ir.Ruling) (ir.Challenge, error) {
	return m.updateChallenge(ctx, challengeID, "apply ruling", func(c ir.Challenge, now time.Time) (ir.Challenge, ir.EventKind, error) {
		next, err := m.challenges.ApplyRuling(c, ruling, now)
		return next, ir.EventChallengeRuled, err
	})
}

// ResolveChallenge folds the outcome of the action's terminal challenge
// back into the action. SETTLED, REJECTED and VOIDED return the action to
// SUBMITTED and resume a PAUSED delay. ACCEPTED stops any pending delay and
// closes the action for good.
func (m *Manager) ResolveChallenge(ctx context.Context, actionID string) (ir.Action, error) {
	agg, err := m.lookupAction(actionID)
	if err != nil {
		return ir.Action{}, err
	}
	next, err := m.apply(ctx, agg, "resolve challenge", time.Time{}, func(a *ir.Aggregate, now time.Time) ([]ir.Event, error) {
		if a.Action.State != ir.ActionChallenged {
			return nil, NewInvalidStateError(KindAction, a.Action.ID, "resolve challenge for", a.Action.State)
		}
		c := findChallenge(a, a.Action.ChallengeID)
		if !c.State.Terminal() {
			return nil, NewInvalidStateError(KindChallenge, c.ID, "resolve", c.State)
		}

		var events []ir.Event
		if c.State.FavorsSubmitter() {
			a.Action.State = ir.ActionSubmitted
			events = append(events, actionEvent(ir.EventActionResumed, a.Action, ir.ActionChallenged))
			if a.Delay != nil && a.Delay.State == ir.DelayPaused {
				resumed, err := m.delays.Resume(*a.Delay, now)
				if err != nil {
					return nil, err
				}
				events = append(events, delayEvent(ir.EventDelayResumed, *a.Delay, resumed))
				a.Delay = &resumed
			}
			return events, nil
		}

		if a.Delay != nil && !a.Delay.State.Terminal() {
			stopped, err := m.delays.Stop(*a.Delay, now)
			if err != nil {
				return nil, err
			}
			events = append(events, delayEvent(ir.EventDelayStopped, *a.Delay, stopped))
			a.Delay = &stopped
		}
		events = append(events, closeAction(a, now))
		return events, nil
	})
	if err != nil {
		return ir.Action{}, err
	}
	return next.Action, nil
}

// Close closes a SUBMITTED action whose delay has EXECUTED, or which has
// no delay.
func (m *Manager) Close(ctx context.Context, actionID string) (ir.Action, error) {
	agg, err := m.lookupAction(actionID)
	if err != nil {
		return ir.Action{}, err
	}
	next, err := m.apply(ctx, agg, "close", time.Time{}, func(a *ir.Aggregate, now time.Time) ([]ir.Event, error) {
		if a.Action.State != ir.ActionSubmitted {
			return nil, NewInvalidStateError(KindAction, a.Action.ID, "close", a.Action.State)
		}
		if a.Delay != nil && a.Delay.State != ir.DelayExecuted {
			return nil, NewInvalidStateError(KindDelay, a.Delay.ID, "close an action with", a.Delay.State)
		}
		return []ir.Event{closeAction(a, now)}, nil
	})
	if err != nil {
		return ir.Action{}, err
	}
	return next.Action, nil
}

// ScheduleDelay attaches a SCHEDULED delay to a SUBMITTED action that has
// none.
func (m *Manager) ScheduleDelay(ctx context.Context, actionID string, duration time.Duration) (ir.Delay, error) {
	agg, err := m.lookupAction(actionID)
	if err != nil {
		return ir.Delay{}, err
	}
	next, err := m.apply(ctx, agg, "schedule delay", time.Time{}, func(a *ir.Aggregate, now time.Time) ([]ir.Event, error) {
		if a.Action.State != ir.ActionSubmitted {
			return nil, NewInvalidStateError(KindAction, a.Action.ID, "schedule a delay for", a.Action.State)
		}
		if a.Delay != nil {
			err := NewInvalidStateError(KindAction, a.Action.ID, "schedule a second delay for", a.Action.State)
			err.Details["delay_id"] = a.Delay.ID
			return nil, err
		}
		d, err := m.delays.Schedule(a.Action, now, duration)
		if err != nil {
			return nil, err
		}
		a.Delay = &d
		a.Action.DelayID = d.ID
		return []ir.Event{delayEvent(ir.EventDelayScheduled, d, d)}, nil
	})
	if err != nil {
		return ir.Delay{}, err
	}
	return *next.Delay, nil
}

// PauseDelay moves a SCHEDULED delay to PAUSED.
func (m *Manager) PauseDelay(ctx context.Context, delayID string) (ir.Delay, error) {
	return m.updateDelay(ctx, delayID, "pause delay", "pause the delay of", ir.EventDelayPaused, m.delays.Pause)
}

// ResumeDelay moves a PAUSED delay back to SCHEDULED, preserving the
// remaining wait. A delay held by an open challenge is resumed only by
// ResolveChallenge.
func (m *Manager) ResumeDelay(ctx context.Context, delayID string) (ir.Delay, error) {
	return m.updateDelay(ctx, delayID, "resume delay", "resume the delay of", ir.EventDelayResumed, m.delays.Resume)
}

// FastForwardDelay makes a SCHEDULED or PAUSED delay due now. Rejected
// while the action is CHALLENGED.
func (m *Manager) FastForwardDelay(ctx context.Context, delayID string) (ir.Delay, error) {
	return m.updateDelay(ctx, delayID, "fast-forward delay", "fast-forward the delay of", ir.EventDelayFastForward, m.delays.FastForward)
}

// StopDelay stops a non-terminal delay. A SUBMITTED action whose delay is
// stopped can never execute, so it is closed in the same transition.
// Stopping the delay of a CHALLENGED action is rejected; the challenge
// decides its fate.
func (m *Manager) StopDelay(ctx context.Context, delayID string) (ir.Delay, error) {
	agg, err := m.lookupDelay(delayID)
	if err != nil {
		return ir.Delay{}, err
	}
	next, err := m.apply(ctx, agg, "stop delay", time.Time{}, func(a *ir.Aggregate, now time.Time) ([]ir.Event, error) {
		if a.Action.State == ir.ActionChallenged {
			return nil, NewInvalidStateError(KindAction, a.Action.ID, "stop the delay of", a.Action.State)
		}
		stopped, err := m.delays.Stop(*a.Delay, now)
		if err != nil {
			return nil, err
		}
		events := []ir.Event{delayEvent(ir.EventDelayStopped, *a.Delay, stopped)}
		a.Delay = &stopped
		if a.Action.State == ir.ActionSubmitted {
			events = append(events, closeAction(a, now))
		}
		return events, nil
	})
	if err != nil {
		return ir.Delay{}, err
	}
	return *next.Delay, nil
}

// TickDelay evaluates a delay at now (the clock reading if now is zero).
// A SCHEDULED or FAST_FORWARDED delay that is due moves to EXECUTED and its
// action is closed. Ticks are ignored while the action is CHALLENGED, and
// ticking a delay that is not due is not an error.
func (m *Manager) TickDelay(ctx context.Context, delayID string, now time.Time) (ir.Delay, error) {
	agg, err := m.lookupDelay(delayID)
	if err != nil {
		return ir.Delay{}, err
	}
	next, err := m.apply(ctx, agg, "tick", ir.NormalizeTime(now), func(a *ir.Aggregate, now time.Time) ([]ir.Event, error) {
		if a.Action.State == ir.ActionChallenged {
			return nil, errUnchanged
		}
		executed, ok := m.delays.Tick(*a.Delay, now)
		if !ok {
			return nil, errUnchanged
		}
		events := []ir.Event{delayEvent(ir.EventDelayExecuted, *a.Delay, executed)}
		a.Delay = &executed
		if a.Action.State == ir.ActionSubmitted {
			events = append(events, closeAction(a, now))
		}
		return events, nil
	})
	if err != nil {
		return ir.Delay{}, err
	}
	return *next.Delay, nil
}

// Action returns the current record of an action.
func (m *Manager) Action(id string) (ir.Action, error) {
	agg, err := m.lookupAction(id)
	if err != nil {
		return ir.Action{}, err
	}
	return agg.snap.Load().Action, nil
}

// Delay returns the current record of a delay.
func (m *Manager) Delay(id string) (ir.Delay, error) {
	agg, err := m.lookupDelay(id)
	if err != nil {
		return ir.Delay{}, err
	}
	return *agg.snap.Load().Delay, nil
}

// ChallengeRecord returns the current record of a challenge.
func (m *Manager) ChallengeRecord(id string) (ir.Challenge, error) {
	agg, err := m.lookupChallenge(id)
	if err != nil {
		return ir.Challenge{}, err
	}
	snap := agg.snap.Load()
	return *findChallenge(snap, id), nil
}

// Aggregate returns a copy of an action's full consistency unit.
func (m *Manager) Aggregate(actionID string) (ir.Aggregate, error) {
	agg, err := m.lookupAction(actionID)
	if err != nil {
		return ir.Aggregate{}, err
	}
	return agg.snap.Load().Clone(), nil
}

// Aggregates returns copies of every aggregate ordered by submission time,
// then action ID.
func (m *Manager) Aggregates() []ir.Aggregate {
	m.mu.RLock()
	out := make([]ir.Aggregate, 0, len(m.actions))
	for _, agg := range m.actions {
		out = append(out, agg.snap.Load().Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].Action, out[j].Action
		if !ai.SubmittedAt.Equal(aj.SubmittedAt) {
			return ai.SubmittedAt.Before(aj.SubmittedAt)
		}
		return ai.ID < aj.ID
	})
	return out
}

// PendingDelays returns the IDs of every non-terminal delay, sorted.
func (m *Manager) PendingDelays() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for _, agg := range m.actions {
		if d := agg.snap.Load().Delay; d != nil && !d.State.Terminal() {
			ids = append(ids, d.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Restore loads previously persisted aggregates and continues the event
// sequence after lastSeq. It fails, loading nothing, if an action is
// already known, appears twice in aggs, or carries an undefined state code.
func (m *Manager) Restore(aggs []ir.Aggregate, lastSeq int64) error {
	for _, a := range aggs {
		if err := validateRecord(a); err != nil {
			return fmt.Errorf("restore action %s: %w", a.Action.ID, err)
		}
	}

	snaps := make([]ir.Aggregate, 0, len(aggs))
	seen := make(map[string]struct{}, len(aggs))
	for _, a := range aggs {
		if _, ok := seen[a.Action.ID]; ok {
			return fmt.Errorf("restore action %s: duplicate in batch", a.Action.ID)
		}
		seen[a.Action.ID] = struct{}{}
		snap := a.Clone()
		if snap.Challenges == nil {
			snap.Challenges = []ir.Challenge{}
		}
		snaps = append(snaps, snap)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range snaps {
		if _, ok := m.actions[snap.Action.ID]; ok {
			return fmt.Errorf("restore action %s: already loaded", snap.Action.ID)
		}
	}
	for _, snap := range snaps {
		snap := snap
		agg := &aggregate{}
		agg.snap.Store(&snap)
		m.indexLocked(agg, snap)
	}
	m.seq.advanceTo(lastSeq)
	m.logger.Info("aggregates restored", "count", len(aggs), "last_seq", lastSeq)
	return nil
}

// apply runs fn against a clone of the aggregate's snapshot under the
// aggregate lock and commits the result. at fixes the transition time; the
// zero value means "read the clock".
func (m *Manager) apply(ctx context.Context, agg *aggregate, op string, at time.Time, fn transition) (ir.Aggregate, error) {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	cur := agg.snap.Load()
	now := at
	if now.IsZero() {
		now = m.clock.Now()
	}

	next := cur.Clone()
	events, err := fn(&next, now)
	if errors.Is(err, errUnchanged) {
		return *cur, nil
	}
	if err != nil {
		m.logger.Warn("transition rejected",
			"op", op,
			"action", cur.Action.ID,
			"code", CodeOf(err),
			"error", err,
		)
		return *cur, err
	}

	if err := m.commit(ctx, op, agg, &next, events, now); err != nil {
		return *cur, err
	}
	return next, nil
}

// commit stamps events, persists the aggregate and publishes the new
// snapshot. The caller holds agg.mu.
func (m *Manager) commit(ctx context.Context, op string, agg *aggregate, next *ir.Aggregate, events []ir.Event, now time.Time) error {
	for i := range events {
		events[i].Seq = m.seq.Next()
		events[i].ActionID = next.Action.ID
		events[i].At = now
		id, err := ir.EventID(events[i])
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		events[i].ID = id
	}

	if m.recorder != nil {
		if err := m.recorder.Record(ctx, *next, events); err != nil {
			m.logger.Error("record failed", "op", op, "action", next.Action.ID, "error", err)
			return fmt.Errorf("%s: record: %w", op, err)
		}
	}

	agg.snap.Store(next)
	m.index(agg, *next)

	m.logger.Info("transition committed",
		"op", op,
		"action", next.Action.ID,
		"state", next.Action.State,
		"events", len(events),
	)
	for _, ev := range events {
		m.logger.Debug("event",
			"seq", ev.Seq,
			"kind", ev.Kind,
			"action", ev.ActionID,
			"delay", ev.DelayID,
			"challenge", ev.ChallengeID,
			"from", ev.From,
			"to", ev.To,
		)
		for _, obs := range m.observers {
			obs(ev)
		}
	}
	return nil
}

// index records the identifiers of a committed aggregate.
func (m *Manager) index(agg *aggregate, a ir.Aggregate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexLocked(agg, a)
}

// indexLocked is index for callers already holding m.mu.
func (m *Manager) indexLocked(agg *aggregate, a ir.Aggregate) {
	if _, ok := m.actions[a.Action.ID]; !ok {
		m.actions[a.Action.ID] = agg
	}
	if a.Delay != nil {
		m.byDelay[a.Delay.ID] = a.Action.ID
	}
	for _, c := range a.Challenges {
		m.byChallenge[c.ID] = a.Action.ID
	}
}

func (m *Manager) lookupAction(id string) (*aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agg, ok := m.actions[id]
	if !ok {
		return nil, NewNotFoundError(KindAction, id)
	}
	return agg, nil
}

func (m *Manager) lookupDelay(id string) (*aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	actionID, ok := m.byDelay[id]
	if !ok {
		return nil, NewNotFoundError(KindDelay, id)
	}
	return m.actions[actionID], nil
}

func (m *Manager) lookupChallenge(id string) (*aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	actionID, ok := m.byChallenge[id]
	if !ok {
		return nil, NewNotFoundError(KindChallenge, id)
	}
	return m.actions[actionID], nil
}

// updateDelay applies a single delay-engine transition to the delay. While
// the action is CHALLENGED the delay belongs to the challenge and manual
// transitions are rejected with verb in the error.
func (m *Manager) updateDelay(
	ctx context.Context,
	delayID, op, verb string,
	kind ir.EventKind,
	step func(ir.Delay, time.Time) (ir.Delay, error),
) (ir.Delay, error) {
	agg, err := m.lookupDelay(delayID)
	if err != nil {
		return ir.Delay{}, err
	}
	next, err := m.apply(ctx, agg, op, time.Time{}, func(a *ir.Aggregate, now time.Time) ([]ir.Event, error) {
		if a.Action.State == ir.ActionChallenged {
			return nil, NewInvalidStateError(KindAction, a.Action.ID, verb, a.Action.State)
		}
		d, err := step(*a.Delay, now)
		if err != nil {
			return nil, err
		}
		ev := delayEvent(kind, *a.Delay, d)
		a.Delay = &d
		return []ir.Event{ev}, nil
	})
	if err != nil {
		return ir.Delay{}, err
	}
	return *next.Delay, nil
}

// updateChallenge applies a single challenge-engine transition to the
// identified challenge.
func (m *Manager) updateChallenge(
	ctx context.Context,
	challengeID, op string,
	step func(ir.Challenge, time.Time) (ir.Challenge, ir.EventKind, error),
) (ir.Challenge, error) {
	agg, err := m.lookupChallenge(challengeID)
	if err != nil {
		return ir.Challenge{}, err
	}
	next, err := m.apply(ctx, agg, op, time.Time{}, func(a *ir.Aggregate, now time.Time) ([]ir.Event, error) {
		c := findChallenge(a, challengeID)
		updated, kind, err := step(*c, now)
		if err != nil {
			return nil, err
		}
		prev := c.State
		*c = updated
		return []ir.Event{challengeEvent(kind, prev, updated)}, nil
	})
	if err != nil {
		return ir.Challenge{}, err
	}
	return *findChallenge(&next, challengeID), nil
}

// findChallenge returns a pointer into a.Challenges. The index guarantees
// the challenge belongs to a.
func findChallenge(a *ir.Aggregate, id string) *ir.Challenge {
	for i := range a.Challenges {
		if a.Challenges[i].ID == id {
			return &a.Challenges[i]
		}
	}
	panic(fmt.Sprintf("challenge %s missing from action %s", id, a.Action.ID))
}

// closeAction moves the action to CLOSED and returns the event.
func closeAction(a *ir.Aggregate, now time.Time) ir.Event {
	prev := a.Action.State
	a.Action.State = ir.ActionClosed
	a.Action.ClosedAt = now
	return actionEvent(ir.EventActionClosed, a.Action, prev)
}

func disputeContext(a *ir.Aggregate, c ir.Challenge) DisputeContext {
	return DisputeContext{
		ActionID:   a.Action.ID,
		Submitter:  a.Action.Submitter,
		Payload:    a.Action.Payload,
		Challenger: c.Challenger,
		Reason:     c.Reason,
	}
}

func actionEvent(kind ir.EventKind, act ir.Action, from ir.ActionState) ir.Event {
	return ir.Event{Kind: kind, From: int(from), To: int(act.State)}
}

func delayEvent(kind ir.EventKind, prev, next ir.Delay) ir.Event {
	return ir.Event{Kind: kind, DelayID: next.ID, From: int(prev.State), To: int(next.State)}
}

func challengeEvent(kind ir.EventKind, from ir.ChallengeState, c ir.Challenge) ir.Event {
	return ir.Event{
		Kind:        kind,
		ChallengeID: c.ID,
		From:        int(from),
		To:          int(c.State),
		Ruling:      c.Ruling,
	}
}

// validateRecord rejects persisted aggregates with undefined state codes
// or broken back-references.
func validateRecord(a ir.Aggregate) error {
	if a.Action.ID == "" {
		return fmt.Errorf("empty action id")
	}
	if !a.Action.State.Valid() {
		return fmt.Errorf("invalid action state code %d", int(a.Action.State))
	}
	if a.Delay != nil {
		if !a.Delay.State.Valid() {
			return fmt.Errorf("invalid delay state code %d", int(a.Delay.State))
		}
		if a.Delay.ActionID != a.Action.ID || a.Action.DelayID != a.Delay.ID {
			return fmt.Errorf("delay %s does not belong to action", a.Delay.ID)
		}
	}
	for _, c := range a.Challenges {
		if !c.State.Valid() {
			return fmt.Errorf("invalid challenge state code %d", int(c.State))
		}
		if !c.Ruling.Valid() {
			return fmt.Errorf("invalid ruling code %d", int(c.Ruling))
		}
		if c.ActionID != a.Action.ID {
			return fmt.Errorf("challenge %s does not belong to action", c.ID)
		}
	}
	if a.Action.State == ir.ActionChallenged {
		if cur := a.Current(); cur == nil || cur.ID != a.Action.ChallengeID {
			return fmt.Errorf("challenged action without current challenge")
		}
	}
	return nil
}
