package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/security"
	"github.com/aryan0dhankhar/grccore/internal/security/middleware"
)

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a request body into dst. An empty body leaves dst
// untouched so optional payloads can be omitted.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewValidationError("body", "invalid JSON: %s", err.Error())
	}
	return nil
}

// caller returns the authenticated tenant, user and role
func caller(r *http.Request) (tenantID, userID string, role security.Role) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		return "", "", ""
	}
	return claims.TenantID, claims.UserID, security.Role(claims.Role)
}

// statusFor maps service errors onto HTTP statuses
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrNoActiveSubscription):
		return http.StatusPaymentRequired, "no_active_subscription"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "quota_exceeded"
	case errors.Is(err, domain.ErrDuplicateActiveSubscription):
		return http.StatusConflict, "duplicate_active_subscription"
	case errors.Is(err, domain.ErrAlreadyTerminal):
		return http.StatusConflict, "already_terminal"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	case errors.Is(err, security.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError translates err and logs unexpected failures. Internal
// error text is not sent to the client.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: code, Message: err.Error()}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	var re *domain.OutOfRangeError
	if errors.As(err, &re) {
		resp.Field = re.Field
	}

	if status == http.StatusInternalServerError {
		log.Error("request failed", slog.String("operation", op), slog.String("error", err.Error()))
		resp.Message = "internal error"
	} else {
		log.Debug("request rejected",
			slog.String("operation", op),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, resp)
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
