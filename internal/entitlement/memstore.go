package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
)

// MemStore is an in-process Store, used by tests and as a dependency-free
// fallback when no Postgres DSN is configured.
type MemStore struct {
	mu    sync.RWMutex
	rules map[string]*Rule // id -> rule
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{rules: make(map[string]*Rule)}
}

func (s *MemStore) Create(_ context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule
	return nil
}

func (s *MemStore) Get(_ context.Context, tenantID, ruleID string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[ruleID]
	if !ok || (rule.TenantID != tenantID && rule.TenantID != Wildcard) {
		return nil, accesserrors.NotFound("entitlement_rule", ruleID)
	}
	return rule, nil
}

func (s *MemStore) List(_ context.Context, tenantID string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Rule
	for _, rule := range s.rules {
		if rule.TenantID == tenantID || tenantID == "" {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (s *MemStore) Update(_ context.Context, tenantID, ruleID string, input UpdateRuleInput) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[ruleID]
	if !ok || rule.TenantID != tenantID {
		return nil, accesserrors.NotFound("entitlement_rule", ruleID)
	}
	applyUpdate(rule, input)
	rule.UpdatedAt = time.Now()
	return rule, nil
}

func (s *MemStore) Delete(_ context.Context, tenantID, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[ruleID]
	if !ok || rule.TenantID != tenantID {
		return accesserrors.NotFound("entitlement_rule", ruleID)
	}
	delete(s.rules, ruleID)
	return nil
}

func (s *MemStore) ListApplicable(_ context.Context, tenantID, resource string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var out []*Rule
	for _, rule := range s.rules {
		if !rule.Enabled {
			continue
		}
		if rule.ExpiresAt != nil && now.After(*rule.ExpiresAt) {
			continue
		}
		if rule.TenantID != Wildcard && rule.TenantID != tenantID {
			continue
		}
		if rule.Resource != Wildcard && rule.Resource != resource {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

func applyUpdate(rule *Rule, input UpdateRuleInput) {
	if input.Name != nil {
		rule.Name = *input.Name
	}
	if input.Description != nil {
		rule.Description = *input.Description
	}
	if input.Resource != nil {
		rule.Resource = *input.Resource
	}
	if input.Effect != nil {
		rule.Effect = *input.Effect
	}
	if input.Conditions != nil {
		rule.Conditions = input.Conditions
	}
	if input.Priority != nil {
		rule.Priority = *input.Priority
	}
	if input.Enabled != nil {
		rule.Enabled = *input.Enabled
	}
	if input.ExpiresAt != nil {
		rule.ExpiresAt = *input.ExpiresAt
	}
}
