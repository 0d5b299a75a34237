package entitlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
	"github.com/quantedge/access-layer/infrastructure/logging"
)

const decisionCacheTTL = 60 * time.Second

// Engine implements C2: rule CRUD plus Check, the prioritised evaluation
// algorithm described in §4.2.
type Engine struct {
	store  Store
	logger *logging.Logger

	mu       sync.RWMutex
	versions map[string]int64 // tenant -> rule-set version

	cacheMu sync.RWMutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	decision  Decision
	expiresAt time.Time
}

// New builds an Engine backed by store.
func New(store Store, logger *logging.Logger) *Engine {
	return &Engine{
		store:    store,
		logger:   logger,
		versions: make(map[string]int64),
		cache:    make(map[string]cacheEntry),
	}
}

func (e *Engine) tenantVersion(tenantID string) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.versions[tenantID]
}

func (e *Engine) bumpTenantVersion(tenantID string) {
	e.mu.Lock()
	e.versions[tenantID]++
	e.mu.Unlock()
}

// Check evaluates (subject, tenant, resource, action) against the
// applicable rule set, with decision caching as described in §4.2.
func (e *Engine) Check(ctx context.Context, subject, tenant, resource, action string, reqContext map[string]interface{}) (Decision, error) {
	version := e.tenantVersion(tenant)
	key := decisionCacheKey(subject, tenant, resource, action, reqContext, version)

	if cached, ok := e.lookupCache(key); ok {
		return cached, nil
	}

	rules, err := e.store.ListApplicable(ctx, tenant, resource)
	if err != nil {
		return Decision{}, accesserrors.Wrap(accesserrors.InternalError, "entitlement rule store unavailable", 503, err).
			WithDetails("reason", "rules-unavailable")
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})

	evalContext := buildEvalContext(subject, tenant, resource, action, reqContext)

	decision := Decision{Allowed: false, Reason: "no matching rule: default deny"}
	for _, rule := range rules {
		decision.RulesEvaluated++
		matched, err := ruleMatches(rule, evalContext)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn(ctx, "entitlement condition evaluation failed", map[string]interface{}{"rule_id": rule.ID, "error": err.Error()})
			}
			continue
		}
		if !matched {
			continue
		}
		decision.Allowed = rule.Effect == Allow
		decision.MatchedRuleID = rule.ID
		decision.MatchedRules = []string{rule.ID}
		decision.Reason = fmt.Sprintf("matched rule %s (%s)", rule.ID, rule.Effect)
		break
	}

	e.storeCache(key, decision)
	return decision, nil
}

func ruleMatches(rule *Rule, evalContext map[string]interface{}) (bool, error) {
	for _, cond := range rule.Conditions {
		ok, err := evaluateCondition(cond, evalContext)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func buildEvalContext(subject, tenant, resource, action string, extra map[string]interface{}) map[string]interface{} {
	ctx := map[string]interface{}{
		"subject":  map[string]interface{}{"id": subject, "tenant": tenant},
		"tenant":   tenant,
		"resource": resource,
		"action":   action,
	}
	for k, v := range extra {
		ctx[k] = v
	}
	return ctx
}

func decisionCacheKey(subject, tenant, resource, action string, reqContext map[string]interface{}, version int64) string {
	normalized, _ := json.Marshal(reqContext)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s|%d", subject, tenant, resource, action, normalized, version)))
	return hex.EncodeToString(sum[:])
}

func (e *Engine) lookupCache(key string) (Decision, bool) {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	entry, ok := e.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return Decision{}, false
	}
	return entry.decision, true
}

func (e *Engine) storeCache(key string, decision Decision) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache[key] = cacheEntry{decision: decision, expiresAt: time.Now().Add(decisionCacheTTL)}
}

// CreateRule creates a rule and bumps the tenant's rule-set version.
func (e *Engine) CreateRule(ctx context.Context, input CreateRuleInput) (*Rule, error) {
	rule := &Rule{
		TenantID:    input.TenantID,
		UserID:      input.UserID,
		Name:        input.Name,
		Description: input.Description,
		Resource:    input.Resource,
		Effect:      input.Effect,
		Conditions:  input.Conditions,
		Priority:    input.Priority,
		Enabled:     input.Enabled,
		ExpiresAt:   input.ExpiresAt,
	}
	if err := e.store.Create(ctx, rule); err != nil {
		return nil, accesserrors.DatabaseError("create_rule", err)
	}
	e.bumpTenantVersion(input.TenantID)
	return rule, nil
}

func (e *Engine) GetRule(ctx context.Context, tenantID, ruleID string) (*Rule, error) {
	return e.store.Get(ctx, tenantID, ruleID)
}

func (e *Engine) ListRules(ctx context.Context, tenantID string) ([]*Rule, error) {
	return e.store.List(ctx, tenantID)
}

func (e *Engine) UpdateRule(ctx context.Context, tenantID, ruleID string, input UpdateRuleInput) (*Rule, error) {
	rule, err := e.store.Update(ctx, tenantID, ruleID, input)
	if err != nil {
		return nil, err
	}
	e.bumpTenantVersion(tenantID)
	return rule, nil
}

func (e *Engine) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	if err := e.store.Delete(ctx, tenantID, ruleID); err != nil {
		return err
	}
	e.bumpTenantVersion(tenantID)
	return nil
}
