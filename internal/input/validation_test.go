package input

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalsim/engine/internal/logging"
)

type validatorClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *validatorClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *validatorClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestValidator(cfg ControlConstraints) (*Validator, *validatorClock) {
	clock := &validatorClock{now: time.UnixMilli(0)}
	return NewValidator(cfg, logging.NewTestLogger(), WithValidatorClock(clock)), clock
}

func TestValidatorAcceptsWithinConstraints(t *testing.T) {
	validator, _ := newTestValidator(DefaultControlConstraints)

	controls := Controls{Forward: 1, Right: -0.5, LookYaw: 0.1, Sprint: true, Camera: CameraRight, Portal: PortalBlue}
	require.True(t, validator.Validate("client-A", controls).Accepted)
	validator.Commit("client-A", controls)

	controls.LookPitch = -0.3
	assert.True(t, validator.Validate("client-A", controls).Accepted)
}

func TestValidatorRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name     string
		controls Controls
		reason   ValidationReason
	}{
		{name: "forward", controls: Controls{Forward: 1.5}, reason: ValidationReasonForwardRange},
		{name: "resize", controls: Controls{PortalResize: -2}, reason: ValidationReasonPortalResizeRange},
		{name: "look", controls: Controls{LookPitch: 2}, reason: ValidationReasonLookRange},
		{name: "camera selector", controls: Controls{Camera: 3}, reason: ValidationReasonSelectorRange},
		{name: "portal selector", controls: Controls{Portal: -1}, reason: ValidationReasonSelectorRange},
		{name: "nan", controls: Controls{Roll: float32(math.NaN())}, reason: ValidationReasonNotFinite},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			validator, _ := newTestValidator(DefaultControlConstraints)
			decision := validator.Validate("client-B", tc.controls)
			assert.False(t, decision.Accepted)
			assert.Equal(t, tc.reason, decision.Reason)
		})
	}
}

func TestValidatorRejectsLookSpike(t *testing.T) {
	validator, _ := newTestValidator(DefaultControlConstraints)

	baseline := Controls{LookYaw: -1.2}
	require.True(t, validator.Validate("client-C", baseline).Accepted)
	validator.Commit("client-C", baseline)

	decision := validator.Validate("client-C", Controls{LookYaw: 1.2})
	assert.False(t, decision.Accepted)
	assert.Equal(t, ValidationReasonLookDelta, decision.Reason)
	assert.Equal(t, uint64(1), validator.Metrics()["client-C"].Violations[ValidationReasonLookDelta])
}

func TestValidatorAppliesCooldownAfterBurst(t *testing.T) {
	cfg := DefaultControlConstraints
	cfg.InvalidBurstLimit = 3
	cfg.CooldownDuration = 300 * time.Millisecond
	validator, clock := newTestValidator(cfg)

	//1.- A full burst of invalid frames triggers the cooldown.
	bad := Controls{Up: 2}
	var last ValidationDecision
	for i := 0; i < cfg.InvalidBurstLimit; i++ {
		last = validator.Validate("client-D", bad)
		require.False(t, last.Accepted, "iteration %d", i)
	}
	assert.Equal(t, cfg.CooldownDuration, last.Cooldown)

	//2.- Valid frames are rejected until it expires.
	decision := validator.Validate("client-D", Controls{})
	assert.Equal(t, ValidationReasonCooldownActive, decision.Reason)

	clock.Advance(cfg.CooldownDuration)
	assert.True(t, validator.Validate("client-D", Controls{}).Accepted)
	assert.Equal(t, uint64(1), validator.Metrics()["client-D"].Cooldowns)
}

func TestValidatorWarnsBeforeCooldownAndCommitClearsBurst(t *testing.T) {
	cfg := DefaultControlConstraints
	cfg.InvalidBurstLimit = 3
	validator, _ := newTestValidator(cfg)

	assert.False(t, validator.Validate("client-W", Controls{Roll: 4}).Warn)
	assert.True(t, validator.Validate("client-W", Controls{Roll: 4}).Warn)

	//1.- An accepted frame resets the burst so the next violation starts over.
	validator.Commit("client-W", Controls{})
	decision := validator.Validate("client-W", Controls{Roll: 4})
	assert.False(t, decision.Warn)
	assert.Zero(t, decision.Cooldown)
	assert.Equal(t, uint64(3), validator.Metrics()["client-W"].Violations[ValidationReasonRollRange])
}

func TestValidatorDisconnectsAfterRepeatedCooldowns(t *testing.T) {
	cfg := DefaultControlConstraints
	cfg.InvalidBurstLimit = 1
	cfg.MaxCooldownStrikes = 2
	validator, clock := newTestValidator(cfg)

	first := validator.Validate("client-E", Controls{Right: 9})
	assert.False(t, first.Disconnect)
	clock.Advance(time.Second)
	second := validator.Validate("client-E", Controls{Right: 9})
	assert.True(t, second.Disconnect)

	validator.Forget("client-E")
	assert.Nil(t, validator.Metrics())
}

func TestPipelineAdmit(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	p := Pipeline{
		Gate:      NewGate(GateConfig{MaxAge: time.Second}, logging.NewTestLogger(), WithClock(clock)),
		Validator: NewValidator(DefaultControlConstraints, logging.NewTestLogger(), WithValidatorClock(clock)),
	}

	env, err := DecodeEnvelope([]byte(`{"seq":1,"sent_at_ms":100000,"controls":{"forward":1,"camera":2}}`))
	require.NoError(t, err)
	assert.Equal(t, CameraRight, env.Controls.Camera)
	assert.True(t, p.Admit("ws-1", env).Accepted)

	//1.- Replays fail at the gate, bad values at the validator.
	assert.Equal(t, DropReasonSequence, p.Admit("ws-1", env).Drop)
	env.Seq = 2
	env.Controls.Forward = 3
	assert.Equal(t, ValidationReasonForwardRange, p.Admit("ws-1", env).Violation)

	p.Forget("ws-1")
	assert.Nil(t, p.Gate.Metrics())

	_, err = DecodeEnvelope([]byte(`{"seq":`))
	assert.Error(t, err)
}
