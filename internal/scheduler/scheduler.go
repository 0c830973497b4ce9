// Package scheduler decides when a local change should trigger a push.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// Kind classifies a local change.
type Kind int

const (
	// Structural changes create, delete or rename top-level entities.
	Structural Kind = iota

	// Incremental changes append content to an existing conversation.
	Incremental
)

func (k Kind) String() string {
	if k == Structural {
		return "structural"
	}

	return "incremental"
}

// ParseKind accepts "structural" or "incremental".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structural":
		return Structural, nil
	case "incremental":
		return Incremental, nil
	}

	return 0, fmt.Errorf("unknown change kind %q", s)
}

// Mode selects how incremental changes are pushed.
type Mode int

const (
	ModeInstant Mode = iota
	ModeManual
	ModeThreshold
)

// Policy is the configured push frequency.
type Policy struct {
	Mode      Mode
	Threshold int
}

func (p Policy) String() string {
	switch p.Mode {
	case ModeManual:
		return "manual"
	case ModeThreshold:
		return strconv.Itoa(p.Threshold)
	}

	return "instant"
}

// ParsePolicy accepts "manual", "instant" or a positive integer.
func ParsePolicy(s string) (Policy, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "", "instant":
		return Policy{Mode: ModeInstant}, nil
	case "manual":
		return Policy{Mode: ModeManual}, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return Policy{}, fmt.Errorf("push frequency must be manual, instant or a positive integer, got %q", s)
	}

	if n == 1 {
		return Policy{Mode: ModeInstant}, nil
	}

	return Policy{Mode: ModeThreshold, Threshold: n}, nil
}

// DirtyMarker records unpublished changes.
type DirtyMarker interface {
	MarkDirty() error
}

// PushFunc publishes local state.
type PushFunc func(ctx context.Context) error

// Scheduler applies a Policy to the stream of local changes.
type Scheduler struct {
	mu      sync.Mutex
	policy  Policy
	state   DirtyMarker
	push    PushFunc
	logger  *slog.Logger
	count   int
	busy    bool
	pending bool
}

// New returns a Scheduler. push is invoked synchronously from OnChange
// and SetBusy.
func New(policy Policy, state DirtyMarker, push PushFunc, logger *slog.Logger) *Scheduler {
	return &Scheduler{policy: policy, state: state, push: push, logger: logger}
}

// OnChange records a local change and pushes when the policy says so.
// While busy, a due push is deferred until SetBusy(false).
func (s *Scheduler) OnChange(ctx context.Context, kind Kind) error {
	if err := s.state.MarkDirty(); err != nil {
		return err
	}

	s.mu.Lock()
	due := s.dueLocked(kind)

	if due && s.busy {
		s.pending = true
		due = false
		s.logger.Debug("push deferred while busy", slog.String("kind", kind.String()))
	}
	s.mu.Unlock()

	if !due {
		return nil
	}

	return s.push(ctx)
}

func (s *Scheduler) dueLocked(kind Kind) bool {
	if kind == Structural {
		s.count = 0
		return true
	}

	switch s.policy.Mode {
	case ModeManual:
		return false
	case ModeThreshold:
		s.count++
		if s.count < s.policy.Threshold {
			return false
		}

		s.count = 0

		return true
	}

	return true
}

// SetBusy sets whether a response is being generated. Clearing it fires
// any push deferred meanwhile.
func (s *Scheduler) SetBusy(ctx context.Context, busy bool) error {
	s.mu.Lock()
	s.busy = busy
	fire := !busy && s.pending
	if fire {
		s.pending = false
	}
	s.mu.Unlock()

	if !fire {
		return nil
	}

	return s.push(ctx)
}

// Pending reports whether a push is waiting for the busy flag to clear.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending
}

// Count returns the incremental changes seen since the last push.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.count
}

func (s *Scheduler) Policy() Policy {
	return s.policy
}
