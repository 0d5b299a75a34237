package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
	"github.com/quantedge/access-layer/internal/entitlement"
)

// EntitlementRepository implements entitlement.Store against Postgres.
type EntitlementRepository struct {
	client *Client
}

// NewEntitlementRepository builds a repository bound to client.
func NewEntitlementRepository(client *Client) *EntitlementRepository {
	return &EntitlementRepository{client: client}
}

// ruleRow mirrors the entitlement_rules table shape; Conditions round-trips
// through JSON since sqlx has no native JSONB scan for []entitlement.Condition.
type ruleRow struct {
	ID          string         `db:"id"`
	TenantID    string         `db:"tenant_id"`
	UserID      string         `db:"user_id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Resource    string         `db:"resource"`
	Effect      string         `db:"effect"`
	Conditions  []byte         `db:"conditions"`
	Priority    int            `db:"priority"`
	Enabled     bool           `db:"enabled"`
	ExpiresAt   *time.Time     `db:"expires_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r ruleRow) toRule() (*entitlement.Rule, error) {
	var conditions []entitlement.Condition
	if len(r.Conditions) > 0 {
		if err := json.Unmarshal(r.Conditions, &conditions); err != nil {
			return nil, fmt.Errorf("unmarshal conditions: %w", err)
		}
	}
	return &entitlement.Rule{
		ID:          r.ID,
		TenantID:    r.TenantID,
		UserID:      r.UserID,
		Name:        r.Name,
		Description: r.Description,
		Resource:    r.Resource,
		Effect:      entitlement.Effect(r.Effect),
		Conditions:  conditions,
		Priority:    r.Priority,
		Enabled:     r.Enabled,
		ExpiresAt:   r.ExpiresAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func (repo *EntitlementRepository) Create(ctx context.Context, rule *entitlement.Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}

	const q = `
		INSERT INTO entitlement_rules
			(id, tenant_id, user_id, name, description, resource, effect, conditions, priority, enabled, expires_at)
		VALUES
			(:id, :tenant_id, :user_id, :name, :description, :resource, :effect, :conditions, :priority, :enabled, :expires_at)
		RETURNING created_at, updated_at`

	row := ruleRow{
		ID: rule.ID, TenantID: rule.TenantID, UserID: rule.UserID, Name: rule.Name,
		Description: rule.Description, Resource: rule.Resource, Effect: string(rule.Effect),
		Conditions: conditions, Priority: rule.Priority, Enabled: rule.Enabled, ExpiresAt: rule.ExpiresAt,
	}

	stmt, err := repo.client.DB.PrepareNamedContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare create rule: %w", err)
	}
	defer stmt.Close()

	var ts struct {
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	if err := stmt.GetContext(ctx, &ts, row); err != nil {
		return fmt.Errorf("insert entitlement rule: %w", err)
	}
	rule.CreatedAt = ts.CreatedAt
	rule.UpdatedAt = ts.UpdatedAt
	return nil
}

func (repo *EntitlementRepository) Get(ctx context.Context, tenantID, ruleID string) (*entitlement.Rule, error) {
	const q = `SELECT * FROM entitlement_rules WHERE id = $1 AND (tenant_id = $2 OR tenant_id = '*')`
	var row ruleRow
	if err := repo.client.DB.GetContext(ctx, &row, q, ruleID, tenantID); err != nil {
		return nil, accesserrors.NotFound("entitlement_rule", ruleID)
	}
	return row.toRule()
}

func (repo *EntitlementRepository) List(ctx context.Context, tenantID string) ([]*entitlement.Rule, error) {
	const q = `SELECT * FROM entitlement_rules WHERE tenant_id = $1 ORDER BY priority DESC, created_at ASC`
	var rows []ruleRow
	if err := repo.client.DB.SelectContext(ctx, &rows, q, tenantID); err != nil {
		return nil, fmt.Errorf("list entitlement rules: %w", err)
	}
	return toRules(rows)
}

func (repo *EntitlementRepository) ListApplicable(ctx context.Context, tenantID, resource string) ([]*entitlement.Rule, error) {
	const q = `
		SELECT * FROM entitlement_rules
		WHERE enabled = TRUE
		  AND (expires_at IS NULL OR expires_at > now())
		  AND (tenant_id = $1 OR tenant_id = '*')
		  AND (resource = $2 OR resource = '*')
		ORDER BY priority DESC, created_at ASC`
	var rows []ruleRow
	if err := repo.client.DB.SelectContext(ctx, &rows, q, tenantID, resource); err != nil {
		return nil, fmt.Errorf("list applicable entitlement rules: %w", err)
	}
	return toRules(rows)
}

func (repo *EntitlementRepository) Update(ctx context.Context, tenantID, ruleID string, input entitlement.UpdateRuleInput) (*entitlement.Rule, error) {
	rule, err := repo.Get(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}

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

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, fmt.Errorf("marshal conditions: %w", err)
	}

	const q = `
		UPDATE entitlement_rules SET
			name = $1, description = $2, resource = $3, effect = $4,
			conditions = $5, priority = $6, enabled = $7, expires_at = $8, updated_at = now()
		WHERE id = $9 AND tenant_id = $10
		RETURNING updated_at`

	var updatedAt time.Time
	err = repo.client.DB.GetContext(ctx, &updatedAt, q,
		rule.Name, rule.Description, rule.Resource, string(rule.Effect),
		conditions, rule.Priority, rule.Enabled, rule.ExpiresAt, ruleID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("update entitlement rule: %w", err)
	}
	rule.UpdatedAt = updatedAt
	return rule, nil
}

func (repo *EntitlementRepository) Delete(ctx context.Context, tenantID, ruleID string) error {
	const q = `DELETE FROM entitlement_rules WHERE id = $1 AND tenant_id = $2`
	result, err := repo.client.DB.ExecContext(ctx, q, ruleID, tenantID)
	if err != nil {
		return fmt.Errorf("delete entitlement rule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return accesserrors.NotFound("entitlement_rule", ruleID)
	}
	return nil
}

func toRules(rows []ruleRow) ([]*entitlement.Rule, error) {
	out := make([]*entitlement.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toRule()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}
