package inject

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/scrivo/internal/focus"
	"github.com/rbright/scrivo/internal/logging"
)

// OrchestratorConfig carries the delivery loop's tunables.
type OrchestratorConfig struct {
	OverallDeadline   time.Duration
	CandidateDeadline time.Duration
	AllowYdotool      bool
	DegradedThreshold int
	WarmTTL           time.Duration
}

// Orchestrator runs the budgeted fast-fail delivery loop: filter candidates,
// rank them by learned reliability, attempt each under its own deadline, and
// terminate with the noop backend when everything else declines or fails.
type Orchestrator struct {
	cfg      OrchestratorConfig
	backends map[Method]Backend
	manager  *Manager
	tracker  focus.Tracker
	policy   *focus.Policy
	profile  Profile
	logger   *slog.Logger
	throttle *logging.Throttle

	onDegraded func()

	mu                sync.Mutex
	consecutiveMisses int
	degradedNotified  bool
	lastWarm          time.Time
	deliverInFlight   bool
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	backends []Backend,
	manager *Manager,
	tracker focus.Tracker,
	policy *focus.Policy,
	profile Profile,
	logger *slog.Logger,
	onDegraded func(),
) *Orchestrator {
	byMethod := make(map[Method]Backend, len(backends))
	for _, backend := range backends {
		byMethod[backend.Method()] = backend
	}
	if cfg.WarmTTL <= 0 {
		cfg.WarmTTL = 30 * time.Second
	}

	return &Orchestrator{
		cfg:        cfg,
		backends:   byMethod,
		manager:    manager,
		tracker:    tracker,
		policy:     policy,
		profile:    profile,
		logger:     logger,
		throttle:   logging.NewThrottle(10 * time.Second),
		onDegraded: onDegraded,
	}
}

// Deliver attempts to inject one unit. It always returns a terminal outcome
// within the overall deadline. Concurrent calls are rejected; the pipeline
// serializes units upstream and a second in-flight delivery would fight over
// the clipboard and focus.
func (o *Orchestrator) Deliver(ctx context.Context, unit Unit) Outcome {
	o.mu.Lock()
	if o.deliverInFlight {
		o.mu.Unlock()
		return Outcome{Method: MethodNoop, Status: StatusAborted, Reason: "delivery already in flight"}
	}
	o.deliverInFlight = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.deliverInFlight = false
		o.mu.Unlock()
	}()

	overallCtx, cancel := context.WithTimeout(ctx, o.cfg.OverallDeadline)
	defer cancel()

	start := time.Now()
	target := o.tracker.Resolve(overallCtx)
	decision := o.policy.Evaluate(target)
	if decision == focus.Deny {
		o.logger.Info("delivery denied by policy",
			"unit", unit.ID, "app", target.AppID, "editable", target.Editable.String())
		return Outcome{Method: MethodNoop, Status: StatusDelivered, Reason: "denied", Latency: time.Since(start)}
	}

	filtered := planCandidates(
		o.profile.DefaultOrder(),
		o.capabilitiesOf,
		target,
		decision,
		o.cfg.AllowYdotool,
		func(method Method) bool { return o.manager.InCooldown(target.AppID, method) },
	)
	ranked := o.manager.Rank(target.AppID, filtered)

	for _, method := range ranked {
		if ctx.Err() != nil {
			return o.abortOutcome(unit, target, start)
		}

		backend, ok := o.backends[method]
		if !ok {
			continue
		}

		remaining := o.cfg.OverallDeadline - time.Since(start)
		if remaining <= 0 {
			break
		}
		budget := o.cfg.CandidateDeadline
		if budget > remaining {
			budget = remaining
		}

		candidateCtx, candidateCancel := context.WithTimeout(overallCtx, budget)
		outcome := backend.Attempt(candidateCtx, unit, target)
		candidateCancel()

		o.logger.Debug("delivery attempt",
			"unit", unit.ID, "app", target.AppID, "method", string(method),
			"status", string(outcome.Status), "reason", outcome.Reason,
			"latency_ms", outcome.Latency.Milliseconds())

		if outcome.Delivered() {
			o.manager.RecordOutcome(target.AppID, outcome)
			o.noteSuccess()
			o.logger.Info("delivered",
				"unit", unit.ID, "app", target.AppID, "method", string(method),
				"chars", len(unit.Text), "latency_ms", time.Since(start).Milliseconds())
			return outcome
		}

		// An external cancel cuts the attempt short through its context. The
		// resulting failure says nothing about the method's health, so it is
		// not recorded and no further candidates run.
		if ctx.Err() != nil {
			return o.abortOutcome(unit, target, start)
		}

		o.manager.RecordOutcome(target.AppID, outcome)
	}

	return o.exhausted(unit, target, start)
}

// Prewarm primes warm-capable backends at most once per TTL window.
func (o *Orchestrator) Prewarm(ctx context.Context) {
	o.mu.Lock()
	if time.Since(o.lastWarm) < o.cfg.WarmTTL {
		o.mu.Unlock()
		return
	}
	o.lastWarm = time.Now()
	o.mu.Unlock()

	for _, backend := range o.backends {
		warmer, ok := backend.(Warmer)
		if !ok {
			continue
		}
		if err := warmer.Warm(ctx); err != nil {
			o.logger.Debug("backend warm failed", "method", string(backend.Method()), "error", err)
		}
	}
}

// abortOutcome is the terminal outcome for an externally cancelled delivery.
func (o *Orchestrator) abortOutcome(unit Unit, target focus.Context, start time.Time) Outcome {
	o.logger.Info("delivery cancelled",
		"unit", unit.ID, "app", target.AppID)
	return Outcome{Method: MethodNoop, Status: StatusAborted, Reason: "session cancelled", Latency: time.Since(start)}
}

func (o *Orchestrator) capabilitiesOf(method Method) Capabilities {
	backend, ok := o.backends[method]
	if !ok {
		return Capabilities{}
	}
	return backend.Capabilities()
}

func (o *Orchestrator) exhausted(unit Unit, target focus.Context, start time.Time) Outcome {
	noop, ok := o.backends[MethodNoop]
	if !ok {
		noop = NoopBackend{}
	}
	outcome := noop.Attempt(context.Background(), unit, target)
	outcome.Latency = time.Since(start)

	if allowed, suppressed := o.throttle.Allow("delivery-exhausted"); allowed {
		o.logger.Warn("all delivery backends exhausted",
			"unit", unit.ID, "app", target.AppID, "suppressed", suppressed)
	}

	o.mu.Lock()
	o.consecutiveMisses++
	notify := !o.degradedNotified &&
		o.cfg.DegradedThreshold > 0 &&
		o.consecutiveMisses >= o.cfg.DegradedThreshold
	if notify {
		o.degradedNotified = true
	}
	o.mu.Unlock()

	if notify && o.onDegraded != nil {
		o.onDegraded()
	}
	return outcome
}

func (o *Orchestrator) noteSuccess() {
	o.mu.Lock()
	o.consecutiveMisses = 0
	o.degradedNotified = false
	o.mu.Unlock()
}

// planCandidates filters the baseline order by capability, policy verdict,
// opt-in gating, and cooldown. Pure so the filtering rules are testable in
// isolation.
func planCandidates(
	baseline []Method,
	capabilitiesOf func(Method) Capabilities,
	target focus.Context,
	decision focus.Decision,
	allowYdotool bool,
	inCooldown func(Method) bool,
) []Method {
	out := make([]Method, 0, len(baseline))
	for _, method := range baseline {
		caps := capabilitiesOf(method)

		if caps.OptIn && !allowYdotool {
			continue
		}
		if caps.RequiresEditable && target.Editable == focus.EditableNo {
			continue
		}
		if decision == focus.PasteOnly && !caps.PasteBased {
			continue
		}
		if inCooldown(method) {
			continue
		}
		out = append(out, method)
	}
	return out
}
