package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

func TestMemoryQuotaUsage_ConcurrentIncrementsAreNotLost(t *testing.T) {
	repo := NewMemoryQuotaUsageRepository()
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.Add(ctx, "tenant-1", domain.QuotaAssessments, 1, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := repo.Get(ctx, "tenant-1", domain.QuotaAssessments)
	require.NoError(t, err)
	assert.Equal(t, 100.0, u.CurrentUsage)
}

func TestMemoryQuotaUsage_DecrementClampsAtZero(t *testing.T) {
	repo := NewMemoryQuotaUsageRepository()
	ctx := context.Background()
	now := time.Now()

	_, _, err := repo.Add(ctx, "tenant-1", domain.QuotaUsers, 2, now)
	require.NoError(t, err)
	before, after, err := repo.Add(ctx, "tenant-1", domain.QuotaUsers, -5, now)
	require.NoError(t, err)
	assert.Equal(t, 2.0, before)
	assert.Equal(t, 0.0, after)
}

func TestMemoryQuotaUsage_ResetAndDue(t *testing.T) {
	repo := NewMemoryQuotaUsageRepository()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	next := now.AddDate(0, 1, 0)

	_, _, _ = repo.Add(ctx, "tenant-1", domain.QuotaAPICallsPerMonth, 40, now)
	require.NoError(t, repo.Reset(ctx, "tenant-1", domain.QuotaAPICallsPerMonth, &next, now))

	u, _ := repo.Get(ctx, "tenant-1", domain.QuotaAPICallsPerMonth)
	assert.Equal(t, 0.0, u.CurrentUsage)

	due, err := repo.DueForReset(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.DueForReset(ctx, next)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestMemorySubscription_ConcurrentCreateAllowsOneActive(t *testing.T) {
	repo := NewMemorySubscriptionRepository()
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Create(ctx, &domain.TenantSubscription{
				ID:       "sub-" + string(rune('a'+i)),
				TenantID: "tenant-1",
				Status:   domain.SubscriptionActive,
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrDuplicateActiveSubscription)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestMemorySubscription_UpdateVersionCheck(t *testing.T) {
	repo := NewMemorySubscriptionRepository()
	ctx := context.Background()

	sub := &domain.TenantSubscription{ID: "sub-1", TenantID: "tenant-1", Status: domain.SubscriptionTrial}
	require.NoError(t, repo.Create(ctx, sub))

	first, _ := repo.GetByID(ctx, "sub-1")
	second, _ := repo.GetByID(ctx, "sub-1")

	first.Status = domain.SubscriptionActive
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Status = domain.SubscriptionCancelled
	assert.ErrorIs(t, repo.Update(ctx, second), domain.ErrConcurrentModification)
}

func TestMemorySubscription_ReplaceIsAllOrNothing(t *testing.T) {
	repo := NewMemorySubscriptionRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.TenantSubscription{ID: "sub-1", TenantID: "tenant-1", Status: domain.SubscriptionActive}))
	require.NoError(t, repo.Create(ctx, &domain.TenantSubscription{ID: "sub-x", TenantID: "tenant-1", Status: domain.SubscriptionExpired}))

	old, err := repo.GetByID(ctx, "sub-1")
	require.NoError(t, err)
	old.Status = domain.SubscriptionCancelled

	// an id collision rejects the whole swap
	err = repo.Replace(ctx, old, &domain.TenantSubscription{ID: "sub-x", TenantID: "tenant-1", Status: domain.SubscriptionActive})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	active, err := repo.FindActive(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", active.ID)

	next := &domain.TenantSubscription{ID: "sub-2", TenantID: "tenant-1", Status: domain.SubscriptionActive}
	require.NoError(t, repo.Replace(ctx, old, next))
	active, err = repo.FindActive(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "sub-2", active.ID)

	stored, err := repo.GetByID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionCancelled, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestMemorySubscription_ReplaceKeepingOldActiveIsDuplicate(t *testing.T) {
	repo := NewMemorySubscriptionRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.TenantSubscription{ID: "sub-1", TenantID: "tenant-1", Status: domain.SubscriptionActive}))
	old, err := repo.GetByID(ctx, "sub-1")
	require.NoError(t, err)

	err = repo.Replace(ctx, old, &domain.TenantSubscription{ID: "sub-2", TenantID: "tenant-1", Status: domain.SubscriptionActive})
	assert.ErrorIs(t, err, domain.ErrDuplicateActiveSubscription)
}

func TestMemoryRisk_CodeUniquePerTenant(t *testing.T) {
	repo := NewMemoryRiskRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Risk{ID: "1", TenantID: "a", Code: "R-1"}))
	assert.ErrorIs(t, repo.Create(ctx, &domain.Risk{ID: "2", TenantID: "a", Code: "R-1"}), domain.ErrAlreadyExists)
	assert.NoError(t, repo.Create(ctx, &domain.Risk{ID: "3", TenantID: "b", Code: "R-1"}))

	_, err := repo.GetByID(ctx, "b", "1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "risks are tenant scoped")
}

func TestMemoryTask_ListFilters(t *testing.T) {
	repo := NewMemoryTaskRepository()
	ctx := context.Background()
	base := time.Now()

	for i, tc := range []struct {
		entity   string
		assignee string
	}{
		{"risk-1", "u1"}, {"risk-1", "u2"}, {"risk-2", "u1"},
	} {
		require.NoError(t, repo.Create(ctx, &domain.WorkflowTask{
			ID: string(rune('a' + i)), TenantID: "t", EntityType: domain.EntityRisk, EntityID: tc.entity,
			AssignedToUserID: tc.assignee, Status: domain.TaskPending,
			AuditMetadata: domain.AuditMetadata{CreatedAt: base.Add(time.Duration(i) * time.Second)},
		}))
	}

	byEntity, err := repo.List(ctx, "t", domain.TaskFilter{EntityID: "risk-1"})
	require.NoError(t, err)
	assert.Len(t, byEntity, 2)
	assert.Equal(t, "a", byEntity[0].ID)

	byAssignee, err := repo.List(ctx, "t", domain.TaskFilter{AssigneeID: "u1"})
	require.NoError(t, err)
	assert.Len(t, byAssignee, 2)
}
