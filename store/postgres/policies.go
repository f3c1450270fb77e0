package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/riskAuth/permission"
)

// PolicyStore loads role grants and ABAC policies. The set is cached for
// TTL so permission checks do not hit the database on every call; a failed
// refresh keeps serving the previous set.
type PolicyStore struct {
	db  *Store
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	cached   *permission.PolicySet
	loadedAt time.Time
}

var _ permission.PolicyStore = (*PolicyStore)(nil)

// Policies returns a cached policy store over s.
func (s *Store) Policies(ttl time.Duration) *PolicyStore {
	return &PolicyStore{db: s, ttl: ttl, now: time.Now}
}

func (p *PolicyStore) Load(ctx context.Context) (*permission.PolicySet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && p.now().Sub(p.loadedAt) < p.ttl {
		return p.cached, nil
	}

	set, err := p.db.loadPolicies(ctx)
	if err != nil {
		if p.cached != nil {
			return p.cached, nil
		}
		return nil, err
	}
	p.cached = set
	p.loadedAt = p.now()
	return set, nil
}

func (s *Store) loadPolicies(ctx context.Context) (*permission.PolicySet, error) {
	set := &permission.PolicySet{Roles: map[string][]permission.Grant{}}

	rows, err := s.db.QueryContext(ctx, `select role, resource, actions from role_grants order by role, resource`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			role    string
			g       permission.Grant
			actions []byte
		)
		if err := rows.Scan(&role, &g.Resource, &actions); err != nil {
			return nil, err
		}
		if err := decodeJSON("actions", actions, &g.Actions); err != nil {
			return nil, err
		}
		set.Roles[role] = append(set.Roles[role], g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prow, err := s.db.QueryContext(ctx, `select id, description, resource, actions, conditions from abac_policies order by id`)
	if err != nil {
		return nil, err
	}
	defer prow.Close()
	for prow.Next() {
		var (
			pol                 permission.Policy
			actions, conditions []byte
		)
		if err := prow.Scan(&pol.ID, &pol.Description, &pol.Resource, &actions, &conditions); err != nil {
			return nil, err
		}
		if err := decodeJSON("actions", actions, &pol.Actions); err != nil {
			return nil, err
		}
		if err := decodeJSON("conditions", conditions, &pol.Conditions); err != nil {
			return nil, err
		}
		set.Policies = append(set.Policies, pol)
	}
	if err := prow.Err(); err != nil {
		return nil, err
	}

	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("stored policies: %w", err)
	}
	return set, nil
}
