package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

func TestPostgresQuotaUsage_AddLocksRowAndClamps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresQuotaUsageRepository(db, nil)
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO quota_usages")).
		WithArgs("tenant-1", "Assessments", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT current_usage FROM quota_usages")).
		WithArgs("tenant-1", "Assessments").
		WillReturnRows(sqlmock.NewRows([]string{"current_usage"}).AddRow(3.0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE quota_usages SET current_usage = $1")).
		WithArgs(0.0, now, "tenant-1", "Assessments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	before, after, err := repo.Add(context.Background(), "tenant-1", domain.QuotaAssessments, -5, now)
	require.NoError(t, err)
	assert.Equal(t, 3.0, before)
	assert.Equal(t, 0.0, after)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQuotaUsage_GetMissingRowIsZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresQuotaUsageRepository(db, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM quota_usages")).
		WithArgs("tenant-1", "Users").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "quota_type", "current_usage", "last_updated", "reset_date"}))

	u, err := repo.Get(context.Background(), "tenant-1", domain.QuotaUsers)
	require.NoError(t, err)
	assert.Equal(t, 0.0, u.CurrentUsage)
	assert.Equal(t, domain.QuotaUsers, u.QuotaType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSubscription_CreateRejectsSecondActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresSubscriptionRepository(db, nil)
	sub := &domain.TenantSubscription{
		ID: "sub-2", TenantID: "tenant-1", ProductID: "prod-1",
		Status: domain.SubscriptionActive, StartDate: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tenant_subscriptions")).
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sub-1"))
	mock.ExpectRollback()

	err = repo.Create(context.Background(), sub)
	assert.ErrorIs(t, err, domain.ErrDuplicateActiveSubscription)
	assert.Contains(t, err.Error(), "sub-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSubscription_CreateMapsUniqueIndexViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresSubscriptionRepository(db, nil)
	sub := &domain.TenantSubscription{
		ID: "sub-2", TenantID: "tenant-1", ProductID: "prod-1",
		Status: domain.SubscriptionTrial, StartDate: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tenant_subscriptions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tenant_subscriptions")).
		WillReturnError(&pq.Error{Code: pgUniqueViolation, Constraint: activeSubscriptionIndex})
	mock.ExpectRollback()

	err = repo.Create(context.Background(), sub)
	assert.ErrorIs(t, err, domain.ErrDuplicateActiveSubscription)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSubscription_CreateSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresSubscriptionRepository(db, nil)
	sub := &domain.TenantSubscription{
		ID: "sub-1", TenantID: "tenant-1", ProductID: "prod-1",
		Status: domain.SubscriptionActive, StartDate: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tenant_subscriptions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tenant_subscriptions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), sub))
	assert.Equal(t, int64(1), sub.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSubscription_UpdateDetectsStaleVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresSubscriptionRepository(db, nil)
	sub := &domain.TenantSubscription{ID: "sub-1", TenantID: "tenant-1", Status: domain.SubscriptionCancelled, Version: 3}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tenant_subscriptions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM tenant_subscriptions WHERE id = $1)")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err = repo.Update(context.Background(), sub)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Equal(t, int64(3), sub.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSubscription_ReplaceRunsInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresSubscriptionRepository(db, nil)
	old := &domain.TenantSubscription{ID: "sub-1", TenantID: "tenant-1", Status: domain.SubscriptionCancelled, Version: 2}
	next := &domain.TenantSubscription{
		ID: "sub-2", TenantID: "tenant-1", ProductID: "prod-2",
		Status: domain.SubscriptionActive, StartDate: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).
		WithArgs("tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tenant_subscriptions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tenant_subscriptions")).
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tenant_subscriptions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Replace(context.Background(), old, next))
	assert.Equal(t, int64(3), old.Version)
	assert.Equal(t, int64(1), next.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSubscription_ReplaceRollsBackWhenInsertFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresSubscriptionRepository(db, nil)
	old := &domain.TenantSubscription{ID: "sub-1", TenantID: "tenant-1", Status: domain.SubscriptionCancelled, Version: 2}
	next := &domain.TenantSubscription{
		ID: "sub-2", TenantID: "tenant-1", ProductID: "prod-2",
		Status: domain.SubscriptionActive, StartDate: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tenant_subscriptions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tenant_subscriptions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tenant_subscriptions")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = repo.Replace(context.Background(), old, next)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int64(2), old.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRisk_GetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRiskRepository(db, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM risks WHERE tenant_id = $1 AND id = $2")).
		WithArgs("tenant-1", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.GetByID(context.Background(), "tenant-1", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRisk_ListBuildsFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRiskRepository(db, nil)
	cols := []string{
		"id", "tenant_id", "code", "title_en", "title_ar", "description_en", "description_ar", "category",
		"owner_user_id", "status", "inherent_probability", "inherent_impact", "inherent_level",
		"residual_probability", "residual_impact", "residual_level", "treatment", "last_assessed_at",
		"version", "created_at", "created_by",
	}
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(cols).AddRow(
		"r-1", "tenant-1", "R-001", "Phishing", "تصيد", "", "", "Cybersecurity",
		nil, "Treated", 4, 5, "Critical",
		2, 2, "VeryLow", "Mitigate", created,
		int64(4), created, "user-1",
	)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tenant_id = $1 AND status = $2 AND COALESCE(residual_level, inherent_level) = $3")).
		WithArgs("tenant-1", "Treated", "VeryLow").
		WillReturnRows(rows)

	risks, err := repo.List(context.Background(), "tenant-1", domain.RiskFilter{Status: domain.RiskTreated, Level: domain.RiskVeryLow})
	require.NoError(t, err)
	require.Len(t, risks, 1)
	r := risks[0]
	assert.Equal(t, domain.RiskCritical, r.InherentLevel)
	require.NotNil(t, r.ResidualLevel)
	assert.Equal(t, domain.RiskVeryLow, *r.ResidualLevel)
	assert.Equal(t, 2, *r.ResidualProbability)
	assert.Empty(t, r.OwnerUserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProduct_CreateDuplicateCode(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresProductRepository(db, nil)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO products")).
		WillReturnError(&pq.Error{Code: pgUniqueViolation, Constraint: "products_code_key"})

	err = repo.Create(context.Background(), &domain.Product{ID: "p-1", Code: "TRIAL"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTask_UpdateMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresTaskRepository(db, nil)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_tasks")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM workflow_tasks")).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err = repo.Update(context.Background(), &domain.WorkflowTask{ID: "task-1", TenantID: "tenant-1", Version: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
