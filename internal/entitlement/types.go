// Package entitlement implements C2: a prioritised rule engine that decides
// whether a subject may take an action on a resource within a tenant, with
// a short-lived decision cache keyed off a per-tenant rule-set version.
package entitlement

import "time"

// Effect is the outcome a matching rule produces.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpBetween     Operator = "between"
	OpTemplate    Operator = "template"
)

// Condition is a single (attribute path, operator, value) triple evaluated
// against request context. AttributePath is a gjson path rooted at the
// evaluation context (e.g. "resource_id", "subject.tenant"). Value carries
// the operator-specific comparison payload: a scalar for equals/contains/
// greater_than/less_than, a slice for in/not_in, a two-element slice for
// between, and a "{{...}}" template string for the template operator.
type Condition struct {
	AttributePath string      `json:"attribute_path"`
	Operator      Operator    `json:"operator"`
	Value         interface{} `json:"value"`
}

// Rule is an entitlement rule persisted by the rule store.
type Rule struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id" db:"tenant_id"`
	UserID      string      `json:"user_id,omitempty" db:"user_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Resource    string      `json:"resource"`
	Effect      Effect      `json:"effect"`
	Conditions  []Condition `json:"conditions"`
	Priority    int         `json:"priority"`
	Enabled     bool        `json:"enabled"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// wildcard scope value: matches any tenant/resource.
const Wildcard = "*"

// Decision is the result of Check.
type Decision struct {
	Allowed       bool     `json:"allowed"`
	Reason        string   `json:"reason"`
	MatchedRuleID string   `json:"matched_rule_id,omitempty"`
	MatchedRules  []string `json:"matched_rule_ids"`
	RulesEvaluated int     `json:"rules_evaluated"`
}

// CreateRuleInput is the payload accepted by Engine.CreateRule.
type CreateRuleInput struct {
	TenantID    string
	UserID      string
	Name        string
	Description string
	Resource    string
	Effect      Effect
	Conditions  []Condition
	Priority    int
	Enabled     bool
	ExpiresAt   *time.Time
}

// UpdateRuleInput carries the mutable fields of a rule update. Nil pointers
// leave the existing field unchanged.
type UpdateRuleInput struct {
	Name        *string
	Description *string
	Resource    *string
	Effect      *Effect
	Conditions  []Condition
	Priority    *int
	Enabled     *bool
	ExpiresAt   **time.Time
}
