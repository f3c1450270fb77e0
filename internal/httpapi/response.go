package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	riskAuth "github.com/MrEthical07/riskAuth"
)

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"status":  "success",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

// maxBody bounds request bodies; every request here is a handful of fields.
const maxBody = 16 << 10

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

// mapError turns engine errors into a status, a stable code and a message
// that reveals nothing beyond the code.
func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, riskAuth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password"
	case errors.Is(err, riskAuth.ErrAccountLocked):
		return http.StatusLocked, "ACCOUNT_LOCKED", "account temporarily locked"
	case errors.Is(err, riskAuth.ErrMFARequired):
		return http.StatusUnauthorized, "MFA_REQUIRED", "second factor required"
	case errors.Is(err, riskAuth.ErrCaptchaRequired):
		return http.StatusUnauthorized, "CAPTCHA_REQUIRED", "captcha required"
	case errors.Is(err, riskAuth.ErrInvalidMFAToken):
		return http.StatusUnauthorized, "INVALID_MFA_TOKEN", "invalid second factor"
	case errors.Is(err, riskAuth.ErrInvalidCaptcha):
		return http.StatusUnauthorized, "INVALID_CAPTCHA", "invalid captcha"
	case errors.Is(err, riskAuth.ErrMFANotEnrolled):
		return http.StatusForbidden, "MFA_NOT_ENROLLED", "no second factor enrolled"
	case errors.Is(err, riskAuth.ErrHighRiskBlocked):
		return http.StatusForbidden, "ACCESS_DENIED", "access denied"
	case errors.Is(err, riskAuth.ErrPermissionDenied):
		return http.StatusForbidden, "PERMISSION_DENIED", "permission denied"
	case errors.Is(err, riskAuth.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"
	case errors.Is(err, riskAuth.ErrTokenExpired):
		return http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired"
	case errors.Is(err, riskAuth.ErrTokenRevoked):
		return http.StatusUnauthorized, "TOKEN_REVOKED", "token revoked"
	case errors.Is(err, riskAuth.ErrTokenInvalid):
		return http.StatusUnauthorized, "INVALID_TOKEN", "invalid token"
	case errors.Is(err, riskAuth.ErrStepUpRequired):
		return http.StatusUnauthorized, "STEP_UP_REQUIRED", "re-authentication required"
	case errors.Is(err, riskAuth.ErrUnavailable), errors.Is(err, riskAuth.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "UNAVAILABLE", "service unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal error"
	}
}
