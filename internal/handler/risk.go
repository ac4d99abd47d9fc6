package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/security"
	"github.com/aryan0dhankhar/grccore/internal/service"
)

// RatingBody carries a probability/impact pair
type RatingBody struct {
	Probability int `json:"probability"`
	Impact      int `json:"impact"`
}

// TreatmentBody is the payload of POST /api/risks/{id}/treat
type TreatmentBody struct {
	Strategy domain.TreatmentStrategy `json:"strategy"`
	RatingBody
}

// RiskResponse adds the level labels in the caller's language
type RiskResponse struct {
	*domain.Risk
	InherentLevelName string `json:"inherentLevelName,omitempty"`
	ResidualLevelName string `json:"residualLevelName,omitempty"`
}

// RiskSummaryResponse adds labels to the per-level counts
type RiskSummaryResponse struct {
	*domain.RiskSummary
	LevelNames map[domain.RiskLevel]string `json:"levelNames"`
}

type RiskHandler struct {
	risks  *service.RiskService
	access *security.ResourceAuthorizer
	logger *slog.Logger
}

func NewRiskHandler(risks *service.RiskService, access *security.ResourceAuthorizer, logger *slog.Logger) *RiskHandler {
	if access == nil {
		access = security.NewResourceAuthorizer(logger)
	}
	return &RiskHandler{risks: risks, access: access, logger: loggerOrDefault(logger)}
}

func localize(r *domain.Risk, locale string) RiskResponse {
	resp := RiskResponse{Risk: r}
	if r.InherentLevel != "" {
		resp.InherentLevelName = r.InherentLevel.DisplayName().Get(locale)
	}
	if r.ResidualLevel != nil {
		resp.ResidualLevelName = r.ResidualLevel.DisplayName().Get(locale)
	}
	return resp
}

// Create handles POST /api/risks. Fails with 429 when the Risks quota is used up.
func (h *RiskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRiskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, "risk.create", err)
		return
	}
	tenantID, userID, _ := caller(r)
	risk, err := h.risks.CreateRisk(r.Context(), tenantID, userID, req)
	if err != nil {
		writeServiceError(w, h.logger, "risk.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, localize(risk, r.Header.Get("Accept-Language")))
}

// List handles GET /api/risks?status=&level=
func (h *RiskHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _, _ := caller(r)
	q := r.URL.Query()
	risks, err := h.risks.ListRisks(r.Context(), tenantID, domain.RiskFilter{
		Status: domain.RiskStatus(q.Get("status")),
		Level:  domain.RiskLevel(q.Get("level")),
	})
	if err != nil {
		writeServiceError(w, h.logger, "risk.list", err)
		return
	}
	locale := r.Header.Get("Accept-Language")
	out := make([]RiskResponse, 0, len(risks))
	for _, risk := range risks {
		out = append(out, localize(risk, locale))
	}
	writeJSON(w, http.StatusOK, out)
}

// Summary handles GET /api/risks/summary
func (h *RiskHandler) Summary(w http.ResponseWriter, r *http.Request) {
	tenantID, _, _ := caller(r)
	summary, err := h.risks.Summary(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, h.logger, "risk.summary", err)
		return
	}
	locale := r.Header.Get("Accept-Language")
	names := make(map[domain.RiskLevel]string, len(domain.RiskLevels))
	for _, l := range domain.RiskLevels {
		names[l] = l.DisplayName().Get(locale)
	}
	writeJSON(w, http.StatusOK, RiskSummaryResponse{RiskSummary: summary, LevelNames: names})
}

// Get handles GET /api/risks/{id}
func (h *RiskHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _, _ := caller(r)
	risk, err := h.risks.GetRisk(r.Context(), tenantID, r.PathValue("id"))
	h.respond(w, r, "risk.get", risk, err)
}

// Assess handles POST /api/risks/{id}/assess
func (h *RiskHandler) Assess(w http.ResponseWriter, r *http.Request) {
	var body RatingBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, h.logger, "risk.assess", err)
		return
	}
	tenantID, userID, _ := caller(r)
	if err := h.authorizeOwner(r, security.ActionWrite); err != nil {
		writeServiceError(w, h.logger, "risk.assess", err)
		return
	}
	risk, err := h.risks.AssessRisk(r.Context(), tenantID, userID, r.PathValue("id"), body.Probability, body.Impact)
	h.respond(w, r, "risk.assess", risk, err)
}

// Treat handles POST /api/risks/{id}/treat
func (h *RiskHandler) Treat(w http.ResponseWriter, r *http.Request) {
	var body TreatmentBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, h.logger, "risk.treat", err)
		return
	}
	tenantID, userID, _ := caller(r)
	if err := h.authorizeOwner(r, security.ActionWrite); err != nil {
		writeServiceError(w, h.logger, "risk.treat", err)
		return
	}
	risk, err := h.risks.ApplyTreatment(r.Context(), tenantID, userID, r.PathValue("id"), body.Strategy, body.Probability, body.Impact)
	h.respond(w, r, "risk.treat", risk, err)
}

// Accept handles POST /api/risks/{id}/accept
func (h *RiskHandler) Accept(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, _ := caller(r)
	if err := h.authorizeOwner(r, security.ActionDecide); err != nil {
		writeServiceError(w, h.logger, "risk.accept", err)
		return
	}
	risk, err := h.risks.AcceptRisk(r.Context(), tenantID, userID, r.PathValue("id"))
	h.respond(w, r, "risk.accept", risk, err)
}

// Close handles POST /api/risks/{id}/close
func (h *RiskHandler) Close(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, _ := caller(r)
	if err := h.authorizeOwner(r, security.ActionDecide); err != nil {
		writeServiceError(w, h.logger, "risk.close", err)
		return
	}
	risk, err := h.risks.CloseRisk(r.Context(), tenantID, userID, r.PathValue("id"))
	h.respond(w, r, "risk.close", risk, err)
}

// authorizeOwner restricts changes of an owned risk to its owner and admins
func (h *RiskHandler) authorizeOwner(r *http.Request, action security.Action) error {
	tenantID, userID, role := caller(r)
	id := r.PathValue("id")
	risk, err := h.risks.GetRisk(r.Context(), tenantID, id)
	if err != nil {
		return err
	}
	return h.access.ValidateResourceAccess(userID, role, security.ResourcePermission{
		ResourceType: security.ResourceRisk,
		ResourceID:   id,
		OwnerID:      risk.OwnerUserID,
		Action:       action,
	})
}

func (h *RiskHandler) respond(w http.ResponseWriter, r *http.Request, op string, risk *domain.Risk, err error) {
	if err != nil {
		writeServiceError(w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, localize(risk, r.Header.Get("Accept-Language")))
}
