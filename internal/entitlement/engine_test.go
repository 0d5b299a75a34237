package entitlement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() (*Engine, Store) {
	store := NewMemStore()
	return New(store, nil), store
}

func TestCheckDefaultDeny(t *testing.T) {
	engine, _ := newTestEngine()

	decision, err := engine.Check(context.Background(), "u1", "t1", "instrument", "read", nil)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.RulesEvaluated)
}

func TestCheckAllowRule(t *testing.T) {
	engine, _ := newTestEngine()
	_, err := engine.CreateRule(context.Background(), CreateRuleInput{
		TenantID: "t1",
		Resource: "instrument",
		Effect:   Allow,
		Priority: 100,
		Enabled:  true,
		Conditions: []Condition{
			{AttributePath: "action", Operator: OpEquals, Value: "read"},
		},
	})
	require.NoError(t, err)

	decision, err := engine.Check(context.Background(), "u1", "t1", "instrument", "read", nil)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.RulesEvaluated)
}

func TestCheckHigherPriorityDenyWins(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	_, err := engine.CreateRule(ctx, CreateRuleInput{
		TenantID: "t1", Resource: "instrument", Effect: Allow, Priority: 100, Enabled: true,
	})
	require.NoError(t, err)
	_, err = engine.CreateRule(ctx, CreateRuleInput{
		TenantID: "t1", Resource: "instrument", Effect: Deny, Priority: 200, Enabled: true,
		Conditions: []Condition{{AttributePath: "resource_id", Operator: OpEquals, Value: "RESTRICTED"}},
	})
	require.NoError(t, err)

	decision, err := engine.Check(ctx, "u1", "t1", "instrument", "read", map[string]interface{}{"resource_id": "RESTRICTED"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestCheckDisabledRuleIgnored(t *testing.T) {
	engine, _ := newTestEngine()
	_, err := engine.CreateRule(context.Background(), CreateRuleInput{
		TenantID: "t1", Resource: "instrument", Effect: Allow, Priority: 100, Enabled: false,
	})
	require.NoError(t, err)

	decision, err := engine.Check(context.Background(), "u1", "t1", "instrument", "read", nil)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestCheckWildcardTenantAndResource(t *testing.T) {
	engine, _ := newTestEngine()
	_, err := engine.CreateRule(context.Background(), CreateRuleInput{
		TenantID: Wildcard, Resource: Wildcard, Effect: Allow, Priority: 1, Enabled: true,
	})
	require.NoError(t, err)

	decision, err := engine.Check(context.Background(), "u1", "any-tenant", "any-resource", "read", nil)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestDecisionCacheInvalidatedByMutation(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	first, err := engine.Check(ctx, "u1", "t1", "instrument", "read", nil)
	require.NoError(t, err)
	assert.False(t, first.Allowed)

	_, err = engine.CreateRule(ctx, CreateRuleInput{
		TenantID: "t1", Resource: "instrument", Effect: Allow, Priority: 100, Enabled: true,
	})
	require.NoError(t, err)

	second, err := engine.Check(ctx, "u1", "t1", "instrument", "read", nil)
	require.NoError(t, err)
	assert.True(t, second.Allowed, "mutation must invalidate the decision cache for the tenant")
}

func TestDecisionCacheHitReturnsSameDecision(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()
	_, err := engine.CreateRule(ctx, CreateRuleInput{
		TenantID: "t1", Resource: "instrument", Effect: Allow, Priority: 100, Enabled: true,
	})
	require.NoError(t, err)

	first, err := engine.Check(ctx, "u1", "t1", "instrument", "read", nil)
	require.NoError(t, err)
	second, err := engine.Check(ctx, "u1", "t1", "instrument", "read", nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRuleCRUDLifecycle(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	rule, err := engine.CreateRule(ctx, CreateRuleInput{TenantID: "t1", Resource: "instrument", Effect: Allow, Enabled: true})
	require.NoError(t, err)

	fetched, err := engine.GetRule(ctx, "t1", rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, fetched.ID)

	newName := "updated"
	updated, err := engine.UpdateRule(ctx, "t1", rule.ID, UpdateRuleInput{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "updated", updated.Name)

	require.NoError(t, engine.DeleteRule(ctx, "t1", rule.ID))
	_, err = engine.GetRule(ctx, "t1", rule.ID)
	require.Error(t, err)
}

func TestExpiredRuleExcluded(t *testing.T) {
	engine, _ := newTestEngine()
	past := mustParseTime("2000-01-01T00:00:00Z")
	_, err := engine.CreateRule(context.Background(), CreateRuleInput{
		TenantID: "t1", Resource: "instrument", Effect: Allow, Priority: 100, Enabled: true, ExpiresAt: &past,
	})
	require.NoError(t, err)

	decision, err := engine.Check(context.Background(), "u1", "t1", "instrument", "read", nil)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}
