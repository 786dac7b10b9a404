package input

import (
	"math"
	"sync"
	"time"

	"portalsim/engine/internal/logging"
)

// ValidationReason names the check a control frame failed.
type ValidationReason string

const (
	ValidationReasonNone              ValidationReason = ""
	ValidationReasonForwardRange      ValidationReason = "forward_range"
	ValidationReasonRightRange        ValidationReason = "right_range"
	ValidationReasonUpRange           ValidationReason = "up_range"
	ValidationReasonRollRange         ValidationReason = "roll_range"
	ValidationReasonPortalRotateRange ValidationReason = "portal_rotate_range"
	ValidationReasonPortalResizeRange ValidationReason = "portal_resize_range"
	ValidationReasonLookRange         ValidationReason = "look_range"
	ValidationReasonSelectorRange     ValidationReason = "selector_range"
	ValidationReasonLookDelta         ValidationReason = "look_delta"
	ValidationReasonNotFinite         ValidationReason = "not_finite"
	ValidationReasonCooldownActive    ValidationReason = "cooldown_active"
)

// Range is an inclusive interval.
type Range struct {
	Min float32
	Max float32
}

func (r Range) contains(v float32) bool { return v >= r.Min && v <= r.Max }

// ControlRanges bounds the analog axes and the per-tick look deltas.
type ControlRanges struct {
	Axis Range
	Look Range
}

// ControlDeltas bounds how far look input may swing between accepted frames. Zero
// disables the check.
type ControlDeltas struct {
	Look float32
}

// ControlConstraints is the validator policy. InvalidBurstLimit violations inside
// InvalidBurstWindow start a cooldown; MaxCooldownStrikes cooldowns disconnect.
type ControlConstraints struct {
	Ranges             ControlRanges
	Deltas             ControlDeltas
	InvalidBurstLimit  int
	InvalidBurstWindow time.Duration
	CooldownDuration   time.Duration
	MaxCooldownStrikes int
}

// DefaultControlConstraints admits unit axes and look deltas up to a quarter turn.
var DefaultControlConstraints = ControlConstraints{
	Ranges: ControlRanges{
		Axis: Range{Min: -1, Max: 1},
		Look: Range{Min: -math.Pi / 2, Max: math.Pi / 2},
	},
	Deltas:             ControlDeltas{Look: math.Pi / 2},
	InvalidBurstLimit:  5,
	InvalidBurstWindow: time.Second,
	CooldownDuration:   500 * time.Millisecond,
	MaxCooldownStrikes: 3,
}

func (c ControlConstraints) withDefaults() ControlConstraints {
	d := DefaultControlConstraints
	if c.Ranges == (ControlRanges{}) {
		c.Ranges = d.Ranges
	}
	if c.InvalidBurstLimit <= 0 {
		c.InvalidBurstLimit = d.InvalidBurstLimit
	}
	if c.InvalidBurstWindow <= 0 {
		c.InvalidBurstWindow = d.InvalidBurstWindow
	}
	if c.CooldownDuration <= 0 {
		c.CooldownDuration = d.CooldownDuration
	}
	if c.MaxCooldownStrikes <= 0 {
		c.MaxCooldownStrikes = d.MaxCooldownStrikes
	}
	return c
}

// axisChannels lists every analog axis in check order.
var axisChannels = []struct {
	reason ValidationReason
	value  func(Controls) float32
}{
	{ValidationReasonForwardRange, func(c Controls) float32 { return c.Forward }},
	{ValidationReasonRightRange, func(c Controls) float32 { return c.Right }},
	{ValidationReasonUpRange, func(c Controls) float32 { return c.Up }},
	{ValidationReasonRollRange, func(c Controls) float32 { return c.Roll }},
	{ValidationReasonPortalRotateRange, func(c Controls) float32 { return c.PortalRotate }},
	{ValidationReasonPortalResizeRange, func(c Controls) float32 { return c.PortalResize }},
}

// ValidationDecision is the verdict on one frame. Warn is set on the violation right
// before a cooldown would start.
type ValidationDecision struct {
	Accepted   bool
	Reason     ValidationReason
	Warn       bool
	Disconnect bool
	Cooldown   time.Duration
}

// ValidationCounters are one client's lifetime violation totals.
type ValidationCounters struct {
	Violations  map[ValidationReason]uint64 `json:"violations,omitempty"`
	Cooldowns   uint64                      `json:"cooldowns"`
	Disconnects uint64                      `json:"disconnects"`
}

func (c ValidationCounters) clone() ValidationCounters {
	out := c
	if len(c.Violations) > 0 {
		out.Violations = make(map[ValidationReason]uint64, len(c.Violations))
		for reason, n := range c.Violations {
			out.Violations[reason] = n
		}
	}
	return out
}

// penalty tracks the violation burst and cooldown state of one client.
type penalty struct {
	burstStart time.Time
	burst      int
	until      time.Time
	strikes    int
}

func (p *penalty) remaining(now time.Time) time.Duration {
	if p.until.IsZero() || !now.Before(p.until) {
		return 0
	}
	return p.until.Sub(now)
}

// strike records one violation and reports whether it opened a cooldown.
func (p *penalty) strike(now time.Time, cfg ControlConstraints) (warn, cooldown, disconnect bool) {
	if p.burst == 0 || now.Sub(p.burstStart) > cfg.InvalidBurstWindow {
		p.burstStart, p.burst = now, 0
	}
	p.burst++
	if p.burst < cfg.InvalidBurstLimit {
		return p.burst == cfg.InvalidBurstLimit-1, false, false
	}
	p.burst = 0
	p.until = now.Add(cfg.CooldownDuration)
	p.strikes++
	return false, true, p.strikes >= cfg.MaxCooldownStrikes
}

type validatorClient struct {
	baseline    Controls
	hasBaseline bool
	penalty     penalty
	counters    ValidationCounters
}

// ValidatorOption customises a Validator.
type ValidatorOption func(*Validator)

// WithValidatorClock replaces the wall clock used for bursts and cooldowns.
func WithValidatorClock(clock Clock) ValidatorOption {
	return func(v *Validator) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// Validator checks control values against ControlConstraints and escalates repeated
// violations from warnings to cooldowns to disconnects. Safe for concurrent use.
type Validator struct {
	cfg    ControlConstraints
	clock  Clock
	logger *logging.Logger

	mu      sync.Mutex
	clients map[string]*validatorClient
}

// NewValidator builds a validator; zero-valued policy fields take the defaults.
func NewValidator(cfg ControlConstraints, logger *logging.Logger, opts ...ValidatorOption) *Validator {
	if logger == nil {
		logger = logging.L()
	}
	v := &Validator{
		cfg:     cfg.withDefaults(),
		clock:   systemClock{},
		logger:  logger,
		clients: make(map[string]*validatorClient),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Validate judges controls for clientID without changing its baseline. Call Commit
// once the frame is applied.
func (v *Validator) Validate(clientID string, controls Controls) ValidationDecision {
	if v == nil {
		return ValidationDecision{Accepted: true}
	}
	now := v.clock.Now()
	v.mu.Lock()
	defer v.mu.Unlock()

	client := v.client(clientID)
	//1.- A cooling-down client is refused outright and earns no new strike.
	if wait := client.penalty.remaining(now); wait > 0 {
		return ValidationDecision{Reason: ValidationReasonCooldownActive, Cooldown: wait}
	}
	reason := v.check(controls)
	if reason == ValidationReasonNone && client.hasBaseline {
		reason = v.checkSwing(client.baseline, controls)
	}
	if reason == ValidationReasonNone {
		return ValidationDecision{Accepted: true}
	}

	//2.- Escalate.
	if client.counters.Violations == nil {
		client.counters.Violations = make(map[ValidationReason]uint64)
	}
	client.counters.Violations[reason]++
	decision := ValidationDecision{Reason: reason}
	var cooldown bool
	decision.Warn, cooldown, decision.Disconnect = client.penalty.strike(now, v.cfg)
	if cooldown {
		decision.Cooldown = v.cfg.CooldownDuration
		client.counters.Cooldowns++
		v.logger.Debug("control cooldown started",
			logging.String("client", clientID),
			logging.String("reason", string(reason)),
			logging.Duration("cooldown", v.cfg.CooldownDuration),
		)
	}
	if decision.Disconnect {
		client.counters.Disconnects++
	}
	return decision
}

// Commit makes controls the client's baseline and clears its violation burst.
func (v *Validator) Commit(clientID string, controls Controls) {
	if v == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	client := v.client(clientID)
	client.baseline, client.hasBaseline = controls, true
	client.penalty.burst = 0
}

// Forget drops every record for clientID.
func (v *Validator) Forget(clientID string) {
	if v == nil {
		return
	}
	v.mu.Lock()
	delete(v.clients, clientID)
	v.mu.Unlock()
}

// Metrics returns per-client counters for clients with at least one violation, or
// nil when there are none.
func (v *Validator) Metrics() map[string]ValidationCounters {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	var out map[string]ValidationCounters
	for id, client := range v.clients {
		if len(client.counters.Violations) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]ValidationCounters)
		}
		out[id] = client.counters.clone()
	}
	return out
}

func (v *Validator) client(id string) *validatorClient {
	c, ok := v.clients[id]
	if !ok {
		c = &validatorClient{}
		v.clients[id] = c
	}
	return c
}

func (v *Validator) check(c Controls) ValidationReason {
	for _, f := range [...]float32{c.Forward, c.Right, c.Up, c.Roll, c.PortalRotate, c.PortalResize, c.LookYaw, c.LookPitch} {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return ValidationReasonNotFinite
		}
	}
	for _, ch := range axisChannels {
		if !v.cfg.Ranges.Axis.contains(ch.value(c)) {
			return ch.reason
		}
	}
	if look := v.cfg.Ranges.Look; !look.contains(c.LookYaw) || !look.contains(c.LookPitch) {
		return ValidationReasonLookRange
	}
	if c.Camera < CameraKeep || c.Camera > CameraRight || c.Portal < PortalKeep || c.Portal > PortalBlue {
		return ValidationReasonSelectorRange
	}
	return ValidationReasonNone
}

func (v *Validator) checkSwing(prev, next Controls) ValidationReason {
	limit := float64(v.cfg.Deltas.Look)
	if limit <= 0 {
		return ValidationReasonNone
	}
	const slack = 1e-6
	if math.Abs(float64(next.LookYaw-prev.LookYaw)) > limit+slack ||
		math.Abs(float64(next.LookPitch-prev.LookPitch)) > limit+slack {
		return ValidationReasonLookDelta
	}
	return ValidationReasonNone
}
