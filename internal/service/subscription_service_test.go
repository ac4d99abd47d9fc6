package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/repository"
)

func TestSubscribe_TrialPlan(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, "tenant-a", "STANDARD", planTrial)

	assert.Equal(t, domain.SubscriptionTrial, sub.Status)
	assert.Equal(t, standardID, sub.ProductID)
	require.NotNil(t, sub.TrialEndDate)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 14), *sub.TrialEndDate)
	assert.Equal(t, sub.TrialEndDate, sub.EndDate)
	assert.Len(t, f.events.named(domain.EventSubscriptionCreated), 1)
	assert.Empty(t, f.events.named(domain.EventSubscriptionActivated))
}

func TestSubscribe_RejectsSecondActive(t *testing.T) {
	f := newFixture(t)
	first := f.subscribe(t, "tenant-a", standardID, planMonthly)

	_, err := f.subs.Subscribe(context.Background(), SubscribeRequest{TenantID: "tenant-a", ProductID: enterpriseID})
	assert.ErrorIs(t, err, domain.ErrDuplicateActiveSubscription)

	current, err := f.subs.Current(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)

	other := f.subscribe(t, "tenant-b", standardID, planMonthly)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestSubscribe_ConcurrentCallsYieldOneActive(t *testing.T) {
	f := newFixture(t)
	var (
		wg      sync.WaitGroup
		ok      atomic.Int32
		dup     atomic.Int32
		unknown atomic.Int32
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.subs.Subscribe(context.Background(), SubscribeRequest{TenantID: "tenant-a", ProductID: standardID})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrDuplicateActiveSubscription):
				dup.Add(1)
			default:
				unknown.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(24), dup.Load())
	assert.Zero(t, unknown.Load())

	all, err := f.subs.List(context.Background(), "tenant-a")
	require.NoError(t, err)
	active := 0
	for _, s := range all {
		if s.HoldsActiveSlot() {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestSubscribe_AfterCancelSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.subscribe(t, "tenant-a", standardID, planMonthly)

	cancelled, err := f.subs.Cancel(ctx, "tenant-a", "admin", first.ID, "switching vendor", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionCancelled, cancelled.Status)
	assert.Equal(t, "switching vendor", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.subs.Current(ctx, "tenant-a")
	assert.ErrorIs(t, err, domain.ErrNoActiveSubscription)

	second := f.subscribe(t, "tenant-a", enterpriseID, "")
	assert.Equal(t, domain.SubscriptionActive, second.Status)

	_, err = f.subs.Cancel(ctx, "tenant-a", "admin", first.ID, "again", nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
}

func TestSubscription_TrialLapsesOnRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trial := f.subscribe(t, "tenant-a", standardID, planTrial)

	f.clock.Advance(15 * 24 * time.Hour)
	_, err := f.subs.Current(ctx, "tenant-a")
	assert.ErrorIs(t, err, domain.ErrNoActiveSubscription)

	stored, err := f.subs.Get(ctx, "tenant-a", trial.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionExpired, stored.Status)
	assert.Len(t, f.events.named(domain.EventSubscriptionExpired), 1)

	_, err = f.subs.Activate(ctx, "tenant-a", "admin", trial.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	f.subscribe(t, "tenant-a", standardID, planMonthly)
}

func TestSubscription_CancelAfterTrialLapsedIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trial := f.subscribe(t, "tenant-a", standardID, planTrial)
	trialEnd := *trial.EndDate

	f.clock.Advance(20 * 24 * time.Hour)
	_, err := f.subs.Cancel(ctx, "tenant-a", "admin", trial.ID, "too late", nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	stored, err := f.subs.Get(ctx, "tenant-a", trial.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionExpired, stored.Status)
	require.NotNil(t, stored.EndDate)
	assert.Equal(t, trialEnd, *stored.EndDate)
	assert.Nil(t, stored.CancelledAt)
	assert.Empty(t, f.events.named(domain.EventSubscriptionCancelled))
}

func TestSubscription_ActivateTrial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trial := f.subscribe(t, "tenant-a", standardID, planTrial)

	active, err := f.subs.Activate(ctx, "tenant-a", "billing", trial.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionActive, active.Status)
	assert.Nil(t, active.EndDate)
	assert.Nil(t, active.TrialEndDate)
	assert.Equal(t, "billing", active.UpdatedBy)
	assert.Len(t, f.events.named(domain.EventSubscriptionActivated), 1)

	_, err = f.subs.Activate(ctx, "tenant-a", "billing", trial.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSubscription_PastDueAndRenew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, "tenant-a", standardID, planMonthly)
	recorded := operationCount(t, "subscription.past_due", "ok")

	pastDue, err := f.subs.MarkPastDue(ctx, "tenant-a", "billing", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionPastDue, pastDue.Status)
	assert.Equal(t, recorded+1, operationCount(t, "subscription.past_due", "ok"))

	_, err = f.subs.Current(ctx, "tenant-a")
	assert.ErrorIs(t, err, domain.ErrNoActiveSubscription)

	end := f.clock.Now().AddDate(1, 0, 0)
	renewed, err := f.subs.Renew(ctx, "tenant-a", "billing", sub.ID, &end)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionActive, renewed.Status)
	assert.Equal(t, end, *renewed.EndDate)

	_, err = f.subs.Renew(ctx, "tenant-a", "billing", sub.ID, ptr(f.clock.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSubscription_RenewBlockedWhileAnotherIsActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, "tenant-a", standardID, planMonthly)
	_, err := f.subs.MarkPastDue(ctx, "tenant-a", "billing", sub.ID)
	require.NoError(t, err)

	f.subscribe(t, "tenant-a", enterpriseID, "")
	_, err = f.subs.Renew(ctx, "tenant-a", "billing", sub.ID, nil)
	assert.ErrorIs(t, err, domain.ErrDuplicateActiveSubscription)
}

func TestSubscription_UpgradeResetsUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.subscribe(t, "tenant-a", standardID, planMonthly)
	_, err := f.quotas.IncrementUsage(ctx, "tenant-a", "u", domain.QuotaAssessments, 9)
	require.NoError(t, err)

	upgraded, err := f.subs.Upgrade(ctx, UpgradeRequest{TenantID: "tenant-a", UserID: "admin", ProductID: "ENTERPRISE"})
	require.NoError(t, err)
	assert.Equal(t, enterpriseID, upgraded.ProductID)

	prev, err := f.subs.Get(ctx, "tenant-a", old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionCancelled, prev.Status)
	assert.Contains(t, prev.CancellationReason, "ENTERPRISE")

	u, err := f.usage.Get(ctx, "tenant-a", domain.QuotaAssessments)
	require.NoError(t, err)
	assert.Zero(t, u.CurrentUsage)

	ok, err := f.subs.HasFeature(ctx, "tenant-a", "AI_FEATURES")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSubscription_UpgradeCarriesUsageWhenAsked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, "tenant-a", standardID, planMonthly)
	_, err := f.quotas.IncrementUsage(ctx, "tenant-a", "u", domain.QuotaAssessments, 4)
	require.NoError(t, err)

	_, err = f.subs.Upgrade(ctx, UpgradeRequest{TenantID: "tenant-a", ProductID: enterpriseID, CarryOverUsage: true})
	require.NoError(t, err)

	u, err := f.usage.Get(ctx, "tenant-a", domain.QuotaAssessments)
	require.NoError(t, err)
	assert.Equal(t, 4.0, u.CurrentUsage)
}

func TestSubscription_UpgradeToUnknownProductKeepsCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, "tenant-a", standardID, planMonthly)

	_, err := f.subs.Upgrade(ctx, UpgradeRequest{TenantID: "tenant-a", ProductID: "PLATINUM"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	current, err := f.subs.Current(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, current.ID)
}

func TestSubscribe_InactiveProductRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.catalog.DeactivateProduct(ctx, "admin", enterpriseID)
	require.NoError(t, err)

	_, err = f.subs.Subscribe(ctx, SubscribeRequest{TenantID: "tenant-a", ProductID: enterpriseID})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.subs.Subscribe(ctx, SubscribeRequest{TenantID: "tenant-a", ProductID: standardID, PricingPlanID: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHasFeature_WithoutSubscription(t *testing.T) {
	f := newFixture(t)
	ok, err := f.subs.HasFeature(context.Background(), "tenant-a", "AI_FEATURES")
	require.NoError(t, err)
	assert.False(t, ok)
}

// unreliableSubscriptions fails every write once broken is set
type unreliableSubscriptions struct {
	*repository.MemorySubscriptionRepository
	broken atomic.Bool
}

var errStoreDown = errors.New("store down")

func (r *unreliableSubscriptions) Create(ctx context.Context, sub *domain.TenantSubscription) error {
	if r.broken.Load() {
		return errStoreDown
	}
	return r.MemorySubscriptionRepository.Create(ctx, sub)
}

func (r *unreliableSubscriptions) Replace(ctx context.Context, old, next *domain.TenantSubscription) error {
	if r.broken.Load() {
		return errStoreDown
	}
	return r.MemorySubscriptionRepository.Replace(ctx, old, next)
}

func TestSubscription_FailedUpgradeKeepsCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := &unreliableSubscriptions{MemorySubscriptionRepository: repository.NewMemorySubscriptionRepository()}
	subs := NewSubscriptionService(repo, f.catalog, f.usage, f.events, nil).WithClock(f.clock.Now)

	sub, err := subs.Subscribe(ctx, SubscribeRequest{TenantID: "tenant-a", ProductID: standardID, PricingPlanID: planMonthly})
	require.NoError(t, err)
	_, _, err = f.usage.Add(ctx, "tenant-a", domain.QuotaAssessments, 3, f.clock.Now())
	require.NoError(t, err)

	repo.broken.Store(true)
	_, err = subs.Upgrade(ctx, UpgradeRequest{TenantID: "tenant-a", UserID: "admin", ProductID: "ENTERPRISE"})
	assert.ErrorIs(t, err, errStoreDown)

	current, err := subs.Current(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, current.ID)
	assert.Equal(t, domain.SubscriptionActive, current.Status)
	assert.Nil(t, current.EndDate)
	assert.Empty(t, f.events.named(domain.EventSubscriptionCancelled))

	u, err := f.usage.Get(ctx, "tenant-a", domain.QuotaAssessments)
	require.NoError(t, err)
	assert.Equal(t, 3.0, u.CurrentUsage)

	repo.broken.Store(false)
	upgraded, err := subs.Upgrade(ctx, UpgradeRequest{TenantID: "tenant-a", UserID: "admin", ProductID: "ENTERPRISE"})
	require.NoError(t, err)
	assert.Equal(t, enterpriseID, upgraded.ProductID)
}

func TestSubscription_UpgradeRejectsFutureEffectiveDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, "tenant-a", standardID, planMonthly)

	_, err := f.subs.Upgrade(ctx, UpgradeRequest{
		TenantID:      "tenant-a",
		ProductID:     enterpriseID,
		EffectiveDate: ptr(f.clock.Now().Add(10 * 24 * time.Hour)),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.subs.Upgrade(ctx, UpgradeRequest{
		TenantID:      "tenant-a",
		ProductID:     enterpriseID,
		EffectiveDate: ptr(sub.StartDate.Add(-time.Hour)),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	current, err := f.subs.Current(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, current.ID)
}

func TestSubscription_UpgradeBackdatedEffectiveDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.subscribe(t, "tenant-a", standardID, planMonthly)

	f.clock.Advance(5 * 24 * time.Hour)
	effective := f.clock.Now().Add(-48 * time.Hour)
	upgraded, err := f.subs.Upgrade(ctx, UpgradeRequest{TenantID: "tenant-a", ProductID: enterpriseID, EffectiveDate: &effective})
	require.NoError(t, err)
	assert.Equal(t, effective, upgraded.StartDate)

	prev, err := f.subs.Get(ctx, "tenant-a", old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionCancelled, prev.Status)
	require.NotNil(t, prev.EndDate)
	assert.Equal(t, effective, *prev.EndDate)

	current, err := f.subs.Current(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, upgraded.ID, current.ID)
	assert.Len(t, f.events.named(domain.EventSubscriptionCancelled), 1)
}
