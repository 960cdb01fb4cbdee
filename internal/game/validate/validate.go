// Package validate implements the server-side rules engine that judges every
// client action before it may touch room state. It rejects cheap and early:
// structural checks first, then sanitization, then per-type semantic rules
// against the player's last accepted state. The validator never trusts
// client-reported deltas and never mutates sessions itself.
package validate

import (
	"math"
	"strings"
	"time"

	"github.com/triadgame/server/internal/config"
	"github.com/triadgame/server/internal/game/room"
	"github.com/triadgame/server/internal/game/session"
)

// Reason identifies why an action was rejected.
type Reason string

const (
	ReasonInvalidActionType  Reason = "InvalidActionType"
	ReasonSanitizationFailed Reason = "SanitizationFailed"
	ReasonOutOfBounds        Reason = "OutOfBounds"
	ReasonRateLimited        Reason = "RateLimited"
	ReasonSpeedExceeded      Reason = "SpeedExceeded"
	ReasonRangeExceeded      Reason = "RangeExceeded"
)

// Action types accepted by the validator.
const (
	TypeMove     = "move"
	TypeAttack   = "attack"
	TypeInteract = "interact"
	TypeDash     = "dash"
	TypeUseItem  = "use_item"
)

// Action is a client-submitted input prior to acceptance.
type Action struct {
	Type string `json:"type"`
	// X, Y is the requested target position for move and dash.
	X float64 `json:"x"`
	Y float64 `json:"y"`
	// VelX, VelY is the client-reported velocity, kept for rendering hints only.
	VelX float64 `json:"velX"`
	VelY float64 `json:"velY"`
	// TargetID names the attack target, empty for untargeted attacks.
	TargetID string `json:"targetId,omitempty"`
	// TargetX, TargetY locate the interaction object.
	TargetX float64 `json:"targetX"`
	TargetY float64 `json:"targetY"`
}

// Result is the validator's verdict. When OK, Action carries the sanitized
// values the room should apply; otherwise Reason explains the rejection.
type Result struct {
	OK     bool
	Reason Reason
	Action Action
}

func accept(act Action) Result { return Result{OK: true, Action: act} }

func reject(reason Reason, act Action) Result { return Result{Reason: reason, Action: act} }

// minElapsed floors the elapsed time used in speed checks so bursty input
// cannot blow up the division.
const minElapsed = time.Second / 60

// Validator is the stateless rules engine. Safe for concurrent use.
type Validator struct {
	cfg config.GameConfig
}

// New creates a Validator with the given gameplay rules.
func New(cfg config.GameConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate judges one action against the player's last accepted state and the
// room context. It reads rate-limit watermarks but mutates nothing; on
// acceptance the room applies the sanitized action.
//
// Precondition: p must be non-nil; rm must be non-nil.
func (v *Validator) Validate(act Action, p *session.PlayerSession, rm *room.Room, now time.Time) Result {
	switch act.Type {
	case TypeMove, TypeAttack, TypeInteract, TypeDash, TypeUseItem:
	default:
		return reject(ReasonInvalidActionType, act)
	}

	sanitized, ok := v.sanitize(act)
	if !ok {
		return reject(ReasonSanitizationFailed, act)
	}

	switch sanitized.Type {
	case TypeMove:
		return v.validateMove(act, sanitized, p, now)
	case TypeAttack:
		return v.validateAttack(sanitized, p, rm, now)
	case TypeInteract:
		return v.validateInteract(sanitized, p)
	case TypeDash:
		return v.validateDash(sanitized, p, now)
	default: // use_item: structural and sanitization checks only
		return accept(sanitized)
	}
}

// sanitize clamps numeric fields into the play field, bounds velocity, and
// strips string fields to a restricted character set. Non-finite numbers fail.
func (v *Validator) sanitize(act Action) (Action, bool) {
	for _, f := range []float64{act.X, act.Y, act.VelX, act.VelY, act.TargetX, act.TargetY} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return act, false
		}
	}

	maxVel := v.cfg.MaxSpeed * v.cfg.SpeedTolerance
	act.X = clamp(act.X, 0, v.cfg.FieldWidth)
	act.Y = clamp(act.Y, 0, v.cfg.FieldHeight)
	act.VelX = clamp(act.VelX, -maxVel, maxVel)
	act.VelY = clamp(act.VelY, -maxVel, maxVel)
	act.TargetX = clamp(act.TargetX, 0, v.cfg.FieldWidth)
	act.TargetY = clamp(act.TargetY, 0, v.cfg.FieldHeight)
	act.TargetID = SanitizeIdentifier(act.TargetID)
	return act, true
}

// validateMove checks bounds and implied speed. The raw (pre-clamp) target is
// used for the bounds check so positions outside the field reject instead of
// silently snapping to the edge.
func (v *Validator) validateMove(raw, act Action, p *session.PlayerSession, now time.Time) Result {
	m := v.cfg.BoundaryMargin
	if raw.X < m || raw.X > v.cfg.FieldWidth-m || raw.Y < m || raw.Y > v.cfg.FieldHeight-m {
		return reject(ReasonOutOfBounds, act)
	}

	// First accepted action has no watermark to measure against.
	if !p.LastActionAt.IsZero() {
		elapsed := now.Sub(p.LastActionAt)
		if elapsed < minElapsed {
			elapsed = minElapsed
		}
		dist := distance(p.Position.X, p.Position.Y, act.X, act.Y)
		speed := dist / elapsed.Seconds()
		if speed > v.cfg.MaxSpeed*v.cfg.SpeedTolerance {
			return reject(ReasonSpeedExceeded, act)
		}
	}
	return accept(act)
}

// validateAttack enforces the attack cooldown and, when a target is named,
// the attack range. A target that no longer exists in the room is not an
// error: stale references to gone sessions are expected and skip the range check.
func (v *Validator) validateAttack(act Action, p *session.PlayerSession, rm *room.Room, now time.Time) Result {
	if !p.LastAttackAt.IsZero() {
		minInterval := time.Duration(float64(time.Second) / v.cfg.MaxAttackRate)
		if now.Sub(p.LastAttackAt) < minInterval {
			return reject(ReasonRateLimited, act)
		}
	}

	if act.TargetID != "" {
		if target, ok := rm.Player(act.TargetID); ok {
			dist := distance(p.Position.X, p.Position.Y, target.Position.X, target.Position.Y)
			if dist > v.cfg.AttackRange*v.cfg.SpeedTolerance {
				return reject(ReasonRangeExceeded, act)
			}
		}
	}
	return accept(act)
}

// validateInteract checks the fixed interaction radius, without tolerance.
func (v *Validator) validateInteract(act Action, p *session.PlayerSession) Result {
	dist := distance(p.Position.X, p.Position.Y, act.TargetX, act.TargetY)
	if dist > v.cfg.InteractRadius {
		return reject(ReasonRangeExceeded, act)
	}
	return accept(act)
}

// validateDash enforces the dash cooldown and maximum dash distance.
func (v *Validator) validateDash(act Action, p *session.PlayerSession, now time.Time) Result {
	if !p.LastDashAt.IsZero() && now.Sub(p.LastDashAt) < v.cfg.DashCooldown {
		return reject(ReasonRateLimited, act)
	}

	dist := distance(p.Position.X, p.Position.Y, act.X, act.Y)
	if dist > v.cfg.MaxDashDistance*v.cfg.SpeedTolerance {
		return reject(ReasonRangeExceeded, act)
	}
	return accept(act)
}

func clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

func distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

const maxIdentifierLen = 64

// SanitizeIdentifier strips a client-supplied identifier or name to
// [A-Za-z0-9_-] and truncates it. The registry applies the same rule to
// player names at join time so attack targets compare cleanly.
func SanitizeIdentifier(s string) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() >= maxIdentifierLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
