package permission

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Wildcard matches any resource or action.
const Wildcard = "*"

// ConditionKind selects how a Condition is evaluated.
type ConditionKind string

const (
	// CondUserAttr compares a subject attribute with Value.
	CondUserAttr ConditionKind = "user_attr"
	// CondContextAttr compares a request context attribute with Value.
	CondContextAttr ConditionKind = "context_attr"
	// CondTimeWindow holds when the request hour is in [StartHour, EndHour).
	// StartHour > EndHour wraps midnight.
	CondTimeWindow ConditionKind = "time_window"
)

// Grant allows actions on a resource.
type Grant struct {
	Resource string   `yaml:"resource" json:"resource"`
	Actions  []string `yaml:"actions" json:"actions"`
}

// Condition is one ABAC predicate.
type Condition struct {
	Kind      ConditionKind `yaml:"kind" json:"kind"`
	Key       string        `yaml:"key,omitempty" json:"key,omitempty"`
	Value     string        `yaml:"value,omitempty" json:"value,omitempty"`
	StartHour int           `yaml:"start_hour,omitempty" json:"start_hour,omitempty"`
	EndHour   int           `yaml:"end_hour,omitempty" json:"end_hour,omitempty"`
	Timezone  string        `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

// Policy grants Actions on Resource when all Conditions hold.
type Policy struct {
	ID          string      `yaml:"id" json:"id"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Resource    string      `yaml:"resource" json:"resource"`
	Actions     []string    `yaml:"actions" json:"actions"`
	Conditions  []Condition `yaml:"conditions" json:"conditions"`
}

// PolicySet is everything the engine needs for a decision.
type PolicySet struct {
	Roles    map[string][]Grant `yaml:"roles" json:"roles"`
	Policies []Policy           `yaml:"policies" json:"policies"`
}

// Validate rejects sets the engine would evaluate ambiguously.
func (s *PolicySet) Validate() error {
	if s == nil {
		return errors.New("nil policy set")
	}
	for role, grants := range s.Roles {
		if strings.TrimSpace(role) == "" {
			return errors.New("role name empty")
		}
		for _, g := range grants {
			if g.Resource == "" || len(g.Actions) == 0 {
				return fmt.Errorf("role %q: grant needs resource and actions", role)
			}
		}
	}

	seen := make(map[string]struct{}, len(s.Policies))
	for _, p := range s.Policies {
		if p.ID == "" {
			return errors.New("policy id empty")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("policy %q: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Resource == "" || len(p.Actions) == 0 {
			return fmt.Errorf("policy %q: needs resource and actions", p.ID)
		}
		for _, c := range p.Conditions {
			if err := c.validate(); err != nil {
				return fmt.Errorf("policy %q: %w", p.ID, err)
			}
		}
	}
	return nil
}

func (c Condition) validate() error {
	switch c.Kind {
	case CondUserAttr, CondContextAttr:
		if c.Key == "" {
			return fmt.Errorf("%s condition needs a key", c.Kind)
		}
	case CondTimeWindow:
		if c.StartHour < 0 || c.StartHour > 23 || c.EndHour < 0 || c.EndHour > 24 {
			return errors.New("time_window hours out of range")
		}
		if c.Timezone != "" {
			if _, err := time.LoadLocation(c.Timezone); err != nil {
				return fmt.Errorf("time_window timezone %q: %w", c.Timezone, err)
			}
		}
	default:
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}
	return nil
}

func matches(pattern, value string) bool {
	return pattern == Wildcard || pattern == value
}

func containsAction(actions []string, action string) bool {
	for _, a := range actions {
		if matches(a, action) {
			return true
		}
	}
	return false
}
