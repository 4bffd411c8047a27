package inject

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/scrivo/internal/focus"
)

// fakeBackend scripts one method's behavior for orchestrator tests.
type fakeBackend struct {
	method   Method
	caps     Capabilities
	attempts atomic.Int32
	attempt  func(ctx context.Context, unit Unit, target focus.Context) Outcome
}

func (f *fakeBackend) Method() Method             { return f.method }
func (f *fakeBackend) Capabilities() Capabilities { return f.caps }

func (f *fakeBackend) Attempt(ctx context.Context, unit Unit, target focus.Context) Outcome {
	f.attempts.Add(1)
	if f.attempt != nil {
		return f.attempt(ctx, unit, target)
	}
	return Outcome{Method: f.method, Status: StatusDelivered}
}

func deliveringBackend(method Method, caps Capabilities) *fakeBackend {
	return &fakeBackend{method: method, caps: caps}
}

func failingBackend(method Method, caps Capabilities) *fakeBackend {
	return &fakeBackend{
		method: method,
		caps:   caps,
		attempt: func(context.Context, Unit, focus.Context) Outcome {
			return Outcome{Method: method, Status: StatusFailed, Reason: "scripted failure"}
		},
	}
}

func fixedTracker(target focus.Context) focus.Tracker {
	return focus.TrackerFunc(func(context.Context) focus.Context { return target })
}

func newTestOrchestrator(
	t *testing.T,
	cfg OrchestratorConfig,
	backends []Backend,
	target focus.Context,
	policy *focus.Policy,
	onDegraded func(),
) (*Orchestrator, *Manager) {
	t.Helper()

	if cfg.OverallDeadline == 0 {
		cfg.OverallDeadline = 800 * time.Millisecond
	}
	if cfg.CandidateDeadline == 0 {
		cfg.CandidateDeadline = 250 * time.Millisecond
	}
	if policy == nil {
		policy = focus.NewPolicy(nil, nil, "paste_only")
	}

	manager := NewManager(CooldownConfig{Initial: time.Second, Max: time.Minute}, 16)
	orch := NewOrchestrator(
		cfg, backends, manager, fixedTracker(target), policy,
		ProfileHyprland, testLogger(), onDegraded,
	)
	return orch, manager
}

func editableTarget() focus.Context {
	return focus.Context{AppID: "kitty", Editable: focus.EditableYes}
}

func TestDeliverUsesFirstHealthyBackend(t *testing.T) {
	t.Parallel()

	insert := deliveringBackend(MethodAtspiInsert, Capabilities{RequiresEditable: true})
	paste := deliveringBackend(MethodClipboardPaste, Capabilities{RequiresClipboard: true, PasteBased: true})

	orch, _ := newTestOrchestrator(t, OrchestratorConfig{},
		[]Backend{insert, paste, NoopBackend{}}, editableTarget(), nil, nil)

	outcome := orch.Deliver(context.Background(), NewUnit("hello"))
	require.True(t, outcome.Delivered())
	require.Equal(t, MethodAtspiInsert, outcome.Method)
	require.Equal(t, int32(1), insert.attempts.Load())
	require.Zero(t, paste.attempts.Load())
}

func TestDeliverFallsThroughFailures(t *testing.T) {
	t.Parallel()

	insert := failingBackend(MethodAtspiInsert, Capabilities{RequiresEditable: true})
	atspiPaste := failingBackend(MethodAtspiPaste, Capabilities{RequiresEditable: true, PasteBased: true})
	clipPaste := deliveringBackend(MethodClipboardPaste, Capabilities{PasteBased: true})

	orch, manager := newTestOrchestrator(t, OrchestratorConfig{},
		[]Backend{insert, atspiPaste, clipPaste, NoopBackend{}}, editableTarget(), nil, nil)

	outcome := orch.Deliver(context.Background(), NewUnit("hello"))
	require.True(t, outcome.Delivered())
	require.Equal(t, MethodClipboardPaste, outcome.Method)

	// Failures entered cooldown, successes did not.
	require.True(t, manager.InCooldown("kitty", MethodAtspiInsert))
	require.True(t, manager.InCooldown("kitty", MethodAtspiPaste))
	require.False(t, manager.InCooldown("kitty", MethodClipboardPaste))
}

func TestDeliverReturnsNoopWhenAllBackendsFail(t *testing.T) {
	t.Parallel()

	insert := failingBackend(MethodAtspiInsert, Capabilities{RequiresEditable: true})
	clipOnly := failingBackend(MethodClipboardOnly, Capabilities{PasteBased: true})

	orch, _ := newTestOrchestrator(t, OrchestratorConfig{},
		[]Backend{insert, clipOnly, NoopBackend{}}, editableTarget(), nil, nil)

	outcome := orch.Deliver(context.Background(), NewUnit("hello"))
	require.Equal(t, MethodNoop, outcome.Method)
	require.Equal(t, StatusDelivered, outcome.Status)
	require.Equal(t, "no backend delivered", outcome.Reason)
}

func TestDeliverTerminatesWithinOverallDeadline(t *testing.T) {
	t.Parallel()

	slow := &fakeBackend{
		method: MethodAtspiInsert,
		caps:   Capabilities{RequiresEditable: true},
		attempt: func(ctx context.Context, _ Unit, _ focus.Context) Outcome {
			<-ctx.Done()
			return Outcome{Method: MethodAtspiInsert, Status: StatusTimedOut, Reason: ctx.Err().Error()}
		},
	}
	alsoSlow := &fakeBackend{
		method: MethodClipboardPaste,
		caps:   Capabilities{PasteBased: true},
		attempt: func(ctx context.Context, _ Unit, _ focus.Context) Outcome {
			<-ctx.Done()
			return Outcome{Method: MethodClipboardPaste, Status: StatusTimedOut, Reason: ctx.Err().Error()}
		},
	}

	orch, _ := newTestOrchestrator(t, OrchestratorConfig{
		OverallDeadline:   150 * time.Millisecond,
		CandidateDeadline: 60 * time.Millisecond,
	}, []Backend{slow, alsoSlow, NoopBackend{}}, editableTarget(), nil, nil)

	start := time.Now()
	outcome := orch.Deliver(context.Background(), NewUnit("hello"))
	elapsed := time.Since(start)

	require.Equal(t, MethodNoop, outcome.Method)
	require.Less(t, elapsed, 400*time.Millisecond)
}

func TestDeliverDenyListStopsBeforeAnyAttempt(t *testing.T) {
	t.Parallel()

	insert := deliveringBackend(MethodAtspiInsert, Capabilities{RequiresEditable: true})
	policy := focus.NewPolicy(nil, []string{"1password"}, "paste_only")
	target := focus.Context{AppID: "1Password", Editable: focus.EditableYes}

	orch, _ := newTestOrchestrator(t, OrchestratorConfig{},
		[]Backend{insert, NoopBackend{}}, target, policy, nil)

	outcome := orch.Deliver(context.Background(), NewUnit("secret text"))
	require.Equal(t, MethodNoop, outcome.Method)
	require.Equal(t, StatusDelivered, outcome.Status)
	require.Equal(t, "denied", outcome.Reason)
	require.Zero(t, insert.attempts.Load())
}

func TestDeliverUnknownFocusPasteOnlySkipsInsert(t *testing.T) {
	t.Parallel()

	insert := deliveringBackend(MethodAtspiInsert, Capabilities{RequiresEditable: true})
	clipOnly := deliveringBackend(MethodClipboardOnly, Capabilities{PasteBased: true})
	target := focus.Context{AppID: "kitty", Editable: focus.EditableUnknown}

	orch, _ := newTestOrchestrator(t, OrchestratorConfig{},
		[]Backend{insert, clipOnly, NoopBackend{}}, target, nil, nil)

	outcome := orch.Deliver(context.Background(), NewUnit("hello"))
	require.True(t, outcome.Delivered())
	require.Equal(t, MethodClipboardOnly, outcome.Method)
	require.Zero(t, insert.attempts.Load())
}

func TestDeliverSkipsOptInBackendUnlessAllowed(t *testing.T) {
	t.Parallel()

	ydotool := deliveringBackend(MethodYdotoolPaste, Capabilities{PasteBased: true, OptIn: true})
	clipOnly := deliveringBackend(MethodClipboardOnly, Capabilities{PasteBased: true})

	orch, _ := newTestOrchestrator(t, OrchestratorConfig{AllowYdotool: false},
		[]Backend{ydotool, clipOnly, NoopBackend{}}, editableTarget(), nil, nil)

	outcome := orch.Deliver(context.Background(), NewUnit("hello"))
	require.True(t, outcome.Delivered())
	require.Equal(t, MethodClipboardOnly, outcome.Method)
	require.Zero(t, ydotool.attempts.Load())

	allowed, _ := newTestOrchestrator(t, OrchestratorConfig{AllowYdotool: true},
		[]Backend{ydotool, clipOnly, NoopBackend{}}, editableTarget(), nil, nil)

	outcome = allowed.Deliver(context.Background(), NewUnit("hello"))
	require.Equal(t, MethodYdotoolPaste, outcome.Method)
}

func TestDeliverSkipsMethodsInCooldown(t *testing.T) {
	t.Parallel()

	insert := deliveringBackend(MethodAtspiInsert, Capabilities{RequiresEditable: true})
	clipOnly := deliveringBackend(MethodClipboardOnly, Capabilities{PasteBased: true})

	orch, manager := newTestOrchestrator(t, OrchestratorConfig{},
		[]Backend{insert, clipOnly, NoopBackend{}}, editableTarget(), nil, nil)

	manager.RecordOutcome("kitty", Outcome{Method: MethodAtspiInsert, Status: StatusFailed})
	require.True(t, manager.InCooldown("kitty", MethodAtspiInsert))

	outcome := orch.Deliver(context.Background(), NewUnit("hello"))
	require.Equal(t, MethodClipboardOnly, outcome.Method)
	require.Zero(t, insert.attempts.Load())
}

func TestDeliverNotifiesOnceWhenDegraded(t *testing.T) {
	t.Parallel()

	failing := failingBackend(MethodClipboardOnly, Capabilities{PasteBased: true})
	var notifications atomic.Int32

	orch, manager := newTestOrchestrator(t, OrchestratorConfig{DegradedThreshold: 3},
		[]Backend{failing, NoopBackend{}}, editableTarget(), nil,
		func() { notifications.Add(1) })

	for i := 0; i < 5; i++ {
		// Clear the failure cooldown so the backend is retried each time.
		manager.RecordOutcome("kitty", Outcome{Method: MethodClipboardOnly, Status: StatusDelivered})
		manager.RecordOutcome("kitty", Outcome{Method: MethodClipboardOnly, Status: StatusDelivered})
		outcome := orch.Deliver(context.Background(), NewUnit("hello"))
		require.Equal(t, MethodNoop, outcome.Method)
	}

	require.Equal(t, int32(1), notifications.Load())
}

func TestDeliverCancelledMidAttemptStopsAndRecordsNothing(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	blocking := &fakeBackend{
		method: MethodAtspiInsert,
		caps:   Capabilities{RequiresEditable: true},
		attempt: func(ctx context.Context, _ Unit, _ focus.Context) Outcome {
			close(started)
			<-ctx.Done()
			return Outcome{Method: MethodAtspiInsert, Status: StatusTimedOut, Reason: ctx.Err().Error()}
		},
	}
	clipPaste := deliveringBackend(MethodClipboardPaste, Capabilities{PasteBased: true})

	orch, manager := newTestOrchestrator(t, OrchestratorConfig{
		OverallDeadline:   2 * time.Second,
		CandidateDeadline: 2 * time.Second,
	}, []Backend{blocking, clipPaste, NoopBackend{}}, editableTarget(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	outcome := orch.Deliver(ctx, NewUnit("hello"))
	require.Equal(t, StatusAborted, outcome.Status)
	require.Equal(t, MethodNoop, outcome.Method)

	// The interrupted attempt stops candidate advancement and leaves no
	// failure signal behind.
	require.Zero(t, clipPaste.attempts.Load())
	require.False(t, manager.InCooldown("kitty", MethodAtspiInsert))
	_, recorded := manager.Record("kitty", MethodAtspiInsert)
	require.False(t, recorded)
}

func TestDeliverCancelledBetweenCandidatesSkipsRemaining(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	insert := deliveringBackend(MethodAtspiInsert, Capabilities{RequiresEditable: true})
	orch, _ := newTestOrchestrator(t, OrchestratorConfig{},
		[]Backend{insert, NoopBackend{}}, editableTarget(), nil, nil)

	outcome := orch.Deliver(ctx, NewUnit("hello"))
	require.Equal(t, StatusAborted, outcome.Status)
	require.Zero(t, insert.attempts.Load())
}

func TestDeliverRejectsConcurrentCalls(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := &fakeBackend{
		method: MethodClipboardOnly,
		caps:   Capabilities{PasteBased: true},
		attempt: func(context.Context, Unit, focus.Context) Outcome {
			close(started)
			<-release
			return Outcome{Method: MethodClipboardOnly, Status: StatusDelivered}
		},
	}

	orch, _ := newTestOrchestrator(t, OrchestratorConfig{},
		[]Backend{blocking, NoopBackend{}}, editableTarget(), nil, nil)

	done := make(chan Outcome, 1)
	go func() { done <- orch.Deliver(context.Background(), NewUnit("first")) }()
	<-started

	second := orch.Deliver(context.Background(), NewUnit("second"))
	require.Equal(t, StatusAborted, second.Status)
	require.Contains(t, second.Reason, "in flight")

	close(release)
	require.True(t, (<-done).Delivered())
}

func TestPrewarmRespectsTTL(t *testing.T) {
	t.Parallel()

	var warms atomic.Int32
	warmable := &warmFakeBackend{
		fakeBackend: fakeBackend{method: MethodAtspiInsert, caps: Capabilities{RequiresEditable: true}},
		warm:        func(context.Context) error { warms.Add(1); return nil },
	}

	orch, _ := newTestOrchestrator(t, OrchestratorConfig{WarmTTL: time.Hour},
		[]Backend{warmable, NoopBackend{}}, editableTarget(), nil, nil)

	orch.Prewarm(context.Background())
	orch.Prewarm(context.Background())
	orch.Prewarm(context.Background())
	require.Equal(t, int32(1), warms.Load())
}

type warmFakeBackend struct {
	fakeBackend
	warm func(context.Context) error
}

func (w *warmFakeBackend) Warm(ctx context.Context) error {
	return w.warm(ctx)
}

func TestPlanCandidatesFiltering(t *testing.T) {
	t.Parallel()

	caps := map[Method]Capabilities{
		MethodAtspiInsert:    {RequiresEditable: true},
		MethodAtspiPaste:     {RequiresEditable: true, PasteBased: true, RequiresClipboard: true},
		MethodClipboardPaste: {PasteBased: true, RequiresClipboard: true},
		MethodYdotoolPaste:   {PasteBased: true, OptIn: true},
		MethodClipboardOnly:  {PasteBased: true},
	}
	capsOf := func(m Method) Capabilities { return caps[m] }
	noCooldown := func(Method) bool { return false }
	baseline := ProfileHyprland.DefaultOrder()

	t.Run("non-editable target drops editable-only methods", func(t *testing.T) {
		t.Parallel()
		got := planCandidates(baseline, capsOf,
			focus.Context{Editable: focus.EditableNo}, focus.Proceed, true, noCooldown)
		require.Equal(t, []Method{MethodClipboardPaste, MethodYdotoolPaste, MethodClipboardOnly}, got)
	})

	t.Run("paste-only verdict drops direct insert", func(t *testing.T) {
		t.Parallel()
		got := planCandidates(baseline, capsOf,
			focus.Context{Editable: focus.EditableUnknown}, focus.PasteOnly, false, noCooldown)
		require.Equal(t, []Method{MethodAtspiPaste, MethodClipboardPaste, MethodClipboardOnly}, got)
	})

	t.Run("cooldown filter applies last", func(t *testing.T) {
		t.Parallel()
		got := planCandidates(baseline, capsOf,
			focus.Context{Editable: focus.EditableYes}, focus.Proceed, true,
			func(m Method) bool { return m == MethodAtspiInsert })
		require.NotContains(t, got, MethodAtspiInsert)
		require.Contains(t, got, MethodAtspiPaste)
	})
}
