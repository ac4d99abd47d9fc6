package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/service"
)

// AmountBody carries the amount for check, increment and decrement
type AmountBody struct {
	Amount float64 `json:"amount"`
}

// QuotaDeniedResponse is returned with 429 when an increment would pass the limit
type QuotaDeniedResponse struct {
	ErrorResponse
	Check *domain.QuotaCheckResult `json:"check"`
}

type QuotaHandler struct {
	quotas *service.QuotaService
	logger *slog.Logger
}

func NewQuotaHandler(quotas *service.QuotaService, logger *slog.Logger) *QuotaHandler {
	return &QuotaHandler{quotas: quotas, logger: loggerOrDefault(logger)}
}

// quotaRequest parses the path quota type and an optional amount (default 1)
func (h *QuotaHandler) quotaRequest(r *http.Request, withAmount bool) (domain.QuotaType, float64, error) {
	quotaType, err := domain.ParseQuotaType(r.PathValue("type"))
	if err != nil {
		return "", 0, err
	}
	if !withAmount {
		return quotaType, 0, nil
	}
	body := AmountBody{Amount: 1}
	if err := decodeJSON(r, &body); err != nil {
		return "", 0, err
	}
	return quotaType, body.Amount, nil
}

// Check handles POST /api/quotas/{type}/check. A denial is a normal 200 answer.
func (h *QuotaHandler) Check(w http.ResponseWriter, r *http.Request) {
	quotaType, amount, err := h.quotaRequest(r, true)
	if err != nil {
		writeServiceError(w, h.logger, "quota.check", err)
		return
	}
	tenantID, _, _ := caller(r)
	res, err := h.quotas.CheckQuota(r.Context(), tenantID, quotaType, amount)
	if err != nil {
		writeServiceError(w, h.logger, "quota.check", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Increment handles POST /api/quotas/{type}/increment. The usage is only
// recorded when the check allows it.
func (h *QuotaHandler) Increment(w http.ResponseWriter, r *http.Request) {
	quotaType, amount, err := h.quotaRequest(r, true)
	if err != nil {
		writeServiceError(w, h.logger, "quota.increment", err)
		return
	}
	tenantID, userID, _ := caller(r)
	res, err := h.quotas.Consume(r.Context(), tenantID, userID, quotaType, amount)
	if err != nil {
		writeServiceError(w, h.logger, "quota.increment", err)
		return
	}
	if !res.Allowed {
		writeJSON(w, http.StatusTooManyRequests, QuotaDeniedResponse{
			ErrorResponse: ErrorResponse{Error: "quota_exceeded", Message: "quota " + string(quotaType) + " exceeded"},
			Check:         res,
		})
		return
	}
	h.writeStatus(w, r, tenantID, quotaType, "quota.increment")
}

// Decrement handles POST /api/quotas/{type}/decrement
func (h *QuotaHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	quotaType, amount, err := h.quotaRequest(r, true)
	if err != nil {
		writeServiceError(w, h.logger, "quota.decrement", err)
		return
	}
	tenantID, _, _ := caller(r)
	if _, err := h.quotas.DecrementUsage(r.Context(), tenantID, quotaType, amount); err != nil {
		writeServiceError(w, h.logger, "quota.decrement", err)
		return
	}
	h.writeStatus(w, r, tenantID, quotaType, "quota.decrement")
}

// Reset handles POST /api/quotas/{type}/reset
func (h *QuotaHandler) Reset(w http.ResponseWriter, r *http.Request) {
	quotaType, _, err := h.quotaRequest(r, false)
	if err != nil {
		writeServiceError(w, h.logger, "quota.reset", err)
		return
	}
	tenantID, userID, _ := caller(r)
	if err := h.quotas.ResetUsage(r.Context(), tenantID, userID, quotaType); err != nil {
		writeServiceError(w, h.logger, "quota.reset", err)
		return
	}
	h.writeStatus(w, r, tenantID, quotaType, "quota.reset")
}

// List handles GET /api/quotas
func (h *QuotaHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _, _ := caller(r)
	statuses, err := h.quotas.ListQuotaStatus(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, h.logger, "quota.list", err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// Get handles GET /api/quotas/{type}
func (h *QuotaHandler) Get(w http.ResponseWriter, r *http.Request) {
	quotaType, _, err := h.quotaRequest(r, false)
	if err != nil {
		writeServiceError(w, h.logger, "quota.get", err)
		return
	}
	tenantID, _, _ := caller(r)
	h.writeStatus(w, r, tenantID, quotaType, "quota.get")
}

func (h *QuotaHandler) writeStatus(w http.ResponseWriter, r *http.Request, tenantID string, quotaType domain.QuotaType, op string) {
	status, err := h.quotas.GetQuotaStatus(r.Context(), tenantID, quotaType)
	if err != nil {
		writeServiceError(w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
