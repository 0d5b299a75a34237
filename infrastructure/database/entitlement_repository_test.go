package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantedge/access-layer/internal/entitlement"
)

func newMockRepo(t *testing.T) (*EntitlementRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewEntitlementRepository(&Client{DB: sqlxDB}), mock
}

func TestEntitlementRepositoryGet(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "user_id", "name", "description", "resource", "effect",
		"conditions", "priority", "enabled", "expires_at", "created_at", "updated_at",
	}).AddRow("rule-1", "t1", "", "n", "d", "instrument", "allow", []byte("[]"), 100, true, nil, now, now)

	mock.ExpectQuery("SELECT \\* FROM entitlement_rules WHERE id = \\$1").
		WithArgs("rule-1", "t1").
		WillReturnRows(rows)

	rule, err := repo.Get(context.Background(), "t1", "rule-1")
	require.NoError(t, err)
	assert.Equal(t, "rule-1", rule.ID)
	assert.Equal(t, entitlement.Allow, rule.Effect)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEntitlementRepositoryGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT \\* FROM entitlement_rules WHERE id = \\$1").
		WithArgs("missing", "t1").
		WillReturnError(sqlmock.ErrCancelled)

	_, err := repo.Get(context.Background(), "t1", "missing")
	require.Error(t, err)
}

func TestEntitlementRepositoryListApplicable(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "user_id", "name", "description", "resource", "effect",
		"conditions", "priority", "enabled", "expires_at", "created_at", "updated_at",
	}).AddRow("rule-1", "t1", "", "n", "d", "instrument", "allow", []byte(`[{"attribute_path":"action","operator":"equals","value":"read"}]`), 100, true, nil, now, now)

	mock.ExpectQuery("SELECT \\* FROM entitlement_rules").
		WithArgs("t1", "instrument").
		WillReturnRows(rows)

	rules, err := repo.ListApplicable(context.Background(), "t1", "instrument")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Len(t, rules[0].Conditions, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEntitlementRepositoryDeleteNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM entitlement_rules").
		WithArgs("rule-1", "t1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "t1", "rule-1")
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEntitlementRepositoryDeleteSuccess(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM entitlement_rules").
		WithArgs("rule-1", "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "t1", "rule-1")
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
