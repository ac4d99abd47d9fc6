package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/service"
)

// SubscribeBody is the payload of POST /api/subscriptions
type SubscribeBody struct {
	ProductID     string     `json:"productId"`
	PricingPlanID string     `json:"pricingPlanId,omitempty"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	AutoRenew     bool       `json:"autoRenew"`
}

// CancelBody is the payload of POST /api/subscriptions/{id}/cancel
type CancelBody struct {
	Reason        string     `json:"reason"`
	EffectiveDate *time.Time `json:"effectiveDate,omitempty"`
}

// UpgradeBody is the payload of POST /api/subscriptions/{id}/upgrade
type UpgradeBody struct {
	ProductID      string     `json:"productId"`
	PricingPlanID  string     `json:"pricingPlanId,omitempty"`
	EffectiveDate  *time.Time `json:"effectiveDate,omitempty"`
	CarryOverUsage bool       `json:"carryOverUsage"`
}

// RenewBody is the payload of POST /api/subscriptions/{id}/renew
type RenewBody struct {
	EndDate *time.Time `json:"endDate,omitempty"`
}

// CurrentSubscriptionResponse pairs the active subscription with its product
type CurrentSubscriptionResponse struct {
	Subscription *domain.TenantSubscription `json:"subscription"`
	Product      *domain.Product            `json:"product"`
}

// SubscriptionHandler serves tenant subscriptions. The tenant always comes
// from the caller's token.
type SubscriptionHandler struct {
	subs   *service.SubscriptionService
	logger *slog.Logger
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subs *service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, logger: loggerOrDefault(logger)}
}

// Subscribe handles POST /api/subscriptions
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var body SubscribeBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, h.logger, "subscription.subscribe", err)
		return
	}
	tenantID, userID, _ := caller(r)
	sub, err := h.subs.Subscribe(r.Context(), service.SubscribeRequest{
		TenantID:      tenantID,
		UserID:        userID,
		ProductID:     body.ProductID,
		PricingPlanID: body.PricingPlanID,
		StartDate:     body.StartDate,
		EndDate:       body.EndDate,
		AutoRenew:     body.AutoRenew,
	})
	if err != nil {
		writeServiceError(w, h.logger, "subscription.subscribe", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// List handles GET /api/subscriptions
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _, _ := caller(r)
	subs, err := h.subs.List(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, h.logger, "subscription.list", err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// Current handles GET /api/subscriptions/current
func (h *SubscriptionHandler) Current(w http.ResponseWriter, r *http.Request) {
	tenantID, _, _ := caller(r)
	sub, product, err := h.subs.CurrentProduct(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, h.logger, "subscription.current", err)
		return
	}
	writeJSON(w, http.StatusOK, CurrentSubscriptionResponse{Subscription: sub, Product: product})
}

// Activate handles POST /api/subscriptions/{id}/activate
func (h *SubscriptionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, _ := caller(r)
	sub, err := h.subs.Activate(r.Context(), tenantID, userID, r.PathValue("id"))
	h.respond(w, "subscription.activate", sub, err)
}

// Cancel handles POST /api/subscriptions/{id}/cancel
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var body CancelBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, h.logger, "subscription.cancel", err)
		return
	}
	tenantID, userID, _ := caller(r)
	sub, err := h.subs.Cancel(r.Context(), tenantID, userID, r.PathValue("id"), body.Reason, body.EffectiveDate)
	h.respond(w, "subscription.cancel", sub, err)
}

// Upgrade handles POST /api/subscriptions/{id}/upgrade
func (h *SubscriptionHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	var body UpgradeBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, h.logger, "subscription.upgrade", err)
		return
	}
	tenantID, userID, _ := caller(r)
	sub, err := h.subs.Upgrade(r.Context(), service.UpgradeRequest{
		TenantID:       tenantID,
		UserID:         userID,
		SubscriptionID: r.PathValue("id"),
		ProductID:      body.ProductID,
		PricingPlanID:  body.PricingPlanID,
		EffectiveDate:  body.EffectiveDate,
		CarryOverUsage: body.CarryOverUsage,
	})
	if err != nil {
		writeServiceError(w, h.logger, "subscription.upgrade", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// PastDue handles POST /api/subscriptions/{id}/past-due
func (h *SubscriptionHandler) PastDue(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, _ := caller(r)
	sub, err := h.subs.MarkPastDue(r.Context(), tenantID, userID, r.PathValue("id"))
	h.respond(w, "subscription.past_due", sub, err)
}

// Renew handles POST /api/subscriptions/{id}/renew
func (h *SubscriptionHandler) Renew(w http.ResponseWriter, r *http.Request) {
	var body RenewBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, h.logger, "subscription.renew", err)
		return
	}
	tenantID, userID, _ := caller(r)
	sub, err := h.subs.Renew(r.Context(), tenantID, userID, r.PathValue("id"), body.EndDate)
	h.respond(w, "subscription.renew", sub, err)
}

func (h *SubscriptionHandler) respond(w http.ResponseWriter, op string, sub *domain.TenantSubscription, err error) {
	if err != nil {
		writeServiceError(w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
