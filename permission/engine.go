package permission

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Subject is the caller being authorized.
type Subject struct {
	ID         string
	Roles      []string
	Attributes map[string]string
}

// Context carries request attributes for ABAC.
type Context struct {
	Attributes map[string]string
	At         time.Time
}

// Decision is the outcome of Decide.
type Decision struct {
	Allowed  bool
	Via      string // "rbac", "abac" or empty on deny
	Role     string
	PolicyID string
}

// PolicyStore supplies the current policy set.
type PolicyStore interface {
	Load(ctx context.Context) (*PolicySet, error)
}

// StaticStore serves a fixed set.
type StaticStore struct {
	Set *PolicySet
}

// Load returns the set or an error when none is configured.
func (s StaticStore) Load(context.Context) (*PolicySet, error) {
	if s.Set == nil {
		return nil, errors.New("no policy set configured")
	}
	return s.Set, nil
}

// Engine evaluates decisions against a PolicyStore.
type Engine struct {
	store  PolicyStore
	now    func() time.Time
	logger *slog.Logger
}

// NewEngine returns an engine reading from store.
func NewEngine(store PolicyStore, now func() time.Time, logger *slog.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, now: now, logger: logger}
}

// Decide authorizes subject for action on resource. A store error returns
// a deny decision together with the error.
func (e *Engine) Decide(ctx context.Context, subject Subject, resource, action string, c Context) (Decision, error) {
	if resource == "" || action == "" {
		return Decision{}, nil
	}
	if e.store == nil {
		return Decision{}, errors.New("no policy store configured")
	}

	set, err := e.store.Load(ctx)
	if err != nil {
		return Decision{}, err
	}

	for _, role := range subject.Roles {
		for _, g := range set.Roles[role] {
			if matches(g.Resource, resource) && containsAction(g.Actions, action) {
				return Decision{Allowed: true, Via: "rbac", Role: role}, nil
			}
		}
	}

	at := c.At
	if at.IsZero() {
		at = e.now()
	}
	for _, p := range set.Policies {
		if !matches(p.Resource, resource) || !containsAction(p.Actions, action) {
			continue
		}
		if e.conditionsHold(p, subject, c.Attributes, at) {
			return Decision{Allowed: true, Via: "abac", PolicyID: p.ID}, nil
		}
	}

	return Decision{}, nil
}

func (e *Engine) conditionsHold(p Policy, subject Subject, attrs map[string]string, at time.Time) bool {
	for _, cond := range p.Conditions {
		switch cond.Kind {
		case CondUserAttr:
			v, ok := subject.Attributes[cond.Key]
			if !ok || v != cond.Value {
				return false
			}
		case CondContextAttr:
			v, ok := attrs[cond.Key]
			if !ok || v != cond.Value {
				return false
			}
		case CondTimeWindow:
			if !inWindow(at, cond) {
				return false
			}
		default:
			e.logger.Warn("unknown policy condition; policy does not apply", "policy_id", p.ID, "kind", cond.Kind)
			return false
		}
	}
	return true
}

func inWindow(at time.Time, c Condition) bool {
	if c.Timezone != "" {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			at = at.In(loc)
		} else {
			return false
		}
	} else {
		at = at.UTC()
	}

	hour := at.Hour()
	switch {
	case c.StartHour == c.EndHour:
		return false
	case c.StartHour < c.EndHour:
		return hour >= c.StartHour && hour < c.EndHour
	default:
		return hour >= c.StartHour || hour < c.EndHour
	}
}
