package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/repository"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) Publish(_ context.Context, e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) named(name string) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func ptr[T any](v T) *T { return &v }

const (
	standardID   = "prod-standard"
	enterpriseID = "prod-enterprise"
	planMonthly  = "standard-monthly"
	planTrial    = "standard-trial"
)

func standardProduct() *domain.Product {
	return &domain.Product{
		ID:       standardID,
		Code:     "STANDARD",
		Name:     domain.LocalizedString{En: "Standard", Ar: "قياسي"},
		IsActive: true,
		Quotas: []domain.ProductQuota{
			{QuotaType: domain.QuotaAssessments, Limit: ptr(10.0), IsEnforced: true},
			{QuotaType: domain.QuotaRisks, Limit: ptr(2.0), IsEnforced: true},
			{QuotaType: domain.QuotaUsers, IsEnforced: true, IsUnlimited: true},
			{QuotaType: domain.QuotaEvidenceStorageMB, Limit: ptr(100.0), IsEnforced: false},
			{QuotaType: domain.QuotaAPICallsPerMonth, Limit: ptr(1000.0), IsEnforced: true, ResetMonthly: true},
		},
		Plans: []domain.PricingPlan{
			{ID: planMonthly, BillingPeriod: domain.BillingMonthly, Price: 2999, Currency: "SAR", IsActive: true},
			{ID: planTrial, BillingPeriod: domain.BillingMonthly, Currency: "SAR", TrialDays: 14, IsActive: true},
		},
	}
}

func enterpriseProduct() *domain.Product {
	return &domain.Product{
		ID:       enterpriseID,
		Code:     "ENTERPRISE",
		Name:     domain.LocalizedString{En: "Enterprise", Ar: "المؤسسات"},
		IsActive: true,
		Features: []domain.ProductFeature{
			{Code: "AI_FEATURES", Name: domain.LocalizedString{En: "AI", Ar: "ذكاء"}, Type: domain.FeatureBoolean, Value: "true"},
		},
		Quotas: []domain.ProductQuota{
			{QuotaType: domain.QuotaAssessments, IsEnforced: true, IsUnlimited: true},
			{QuotaType: domain.QuotaRisks, IsEnforced: true, IsUnlimited: true},
		},
		Plans: []domain.PricingPlan{
			{ID: "enterprise-yearly", BillingPeriod: domain.BillingYearly, Price: 199990, Currency: "SAR", IsActive: true},
		},
	}
}

type fixture struct {
	clock     *fakeClock
	events    *eventRecorder
	usage     *repository.MemoryQuotaUsageRepository
	subsRepo  *repository.MemorySubscriptionRepository
	catalog   *CatalogService
	subs      *SubscriptionService
	quotas    *QuotaService
	risks     *RiskService
	workflows *WorkflowService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    newFakeClock(),
		events:   &eventRecorder{},
		usage:    repository.NewMemoryQuotaUsageRepository(),
		subsRepo: repository.NewMemorySubscriptionRepository(),
	}
	f.catalog = NewCatalogService(repository.NewMemoryProductRepository(), time.Minute, nil).WithClock(f.clock.Now)
	created, err := f.catalog.Seed(context.Background(), "system", []*domain.Product{standardProduct(), enterpriseProduct()})
	require.NoError(t, err)
	require.Equal(t, 2, created)

	f.subs = NewSubscriptionService(f.subsRepo, f.catalog, f.usage, f.events, nil).WithClock(f.clock.Now)
	f.quotas = NewQuotaService(f.subs, f.usage, f.events, nil).WithClock(f.clock.Now)
	f.risks = NewRiskService(repository.NewMemoryRiskRepository(), f.quotas, f.events, nil).WithClock(f.clock.Now)
	f.workflows = NewWorkflowService(repository.NewMemoryTaskRepository(), f.events, nil).WithClock(f.clock.Now)
	return f
}

func (f *fixture) subscribe(t *testing.T, tenantID, productID, planID string) *domain.TenantSubscription {
	t.Helper()
	sub, err := f.subs.Subscribe(context.Background(), SubscribeRequest{
		TenantID:      tenantID,
		UserID:        "admin",
		ProductID:     productID,
		PricingPlanID: planID,
	})
	require.NoError(t, err)
	return sub
}

// operationCount reads how many times an operation finished with result.
func operationCount(t *testing.T, operation, result string) uint64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "grccore_service_operation_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["operation"] == operation && labels["result"] == result {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}
