package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/reliability/retry"
)

type fakeResetter struct {
	mu       sync.Mutex
	due      []*domain.QuotaUsage
	listErr  error
	failures map[string]int // remaining failures per tenant
	resets   []string
}

func (f *fakeResetter) DueForReset(context.Context) ([]*domain.QuotaUsage, error) {
	return f.due, f.listErr
}

func (f *fakeResetter) ResetDue(_ context.Context, u *domain.QuotaUsage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[u.TenantID] > 0 {
		f.failures[u.TenantID]--
		return errors.New("redis unavailable")
	}
	f.resets = append(f.resets, u.TenantID)
	return nil
}

func newTestWorker(r QuotaResetter) *QuotaResetWorker {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewQuotaResetWorker(r, log, time.Hour).WithRetry(&retry.Config{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
	})
}

func TestSweep_RetriesTransientFailures(t *testing.T) {
	r := &fakeResetter{
		due: []*domain.QuotaUsage{
			{TenantID: "a", QuotaType: domain.QuotaAPICallsPerMonth},
			{TenantID: "b", QuotaType: domain.QuotaAPICallsPerMonth},
			{TenantID: "c", QuotaType: domain.QuotaAPICallsPerMonth},
		},
		failures: map[string]int{"b": 2, "c": 5},
	}

	n := newTestWorker(r).Sweep(context.Background())

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, r.resets)
}

func TestSweep_ListFailureResetsNothing(t *testing.T) {
	r := &fakeResetter{listErr: errors.New("db down")}
	assert.Zero(t, newTestWorker(r).Sweep(context.Background()))
	assert.Empty(t, r.resets)
}

func TestStart_SweepsImmediatelyAndStops(t *testing.T) {
	r := &fakeResetter{due: []*domain.QuotaUsage{{TenantID: "a", QuotaType: domain.QuotaAPICallsPerMonth}}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		newTestWorker(r).Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.resets) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
