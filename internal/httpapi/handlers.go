package httpapi

import (
	"net/http"
	"time"

	riskAuth "github.com/MrEthical07/riskAuth"
	"github.com/MrEthical07/riskAuth/middleware"
)

type authenticateRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	MFAToken     string `json:"mfa_token,omitempty"`
	CaptchaToken string `json:"captcha_token,omitempty"`
}

type challengeResponse struct {
	Status       string               `json:"status"`
	Code         string               `json:"code"`
	Challenges   []riskAuth.Challenge `json:"challenges"`
	MFAMethod    string               `json:"mfa_method,omitempty"`
	MFAExpiresAt *time.Time           `json:"mfa_expires_at,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type permissionRequest struct {
	Resource   string            `json:"resource"`
	Action     string            `json:"action"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "backend unavailable")
			return
		}
	}
	writeMessage(w, http.StatusOK, "ok")
}

func (h *handler) authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := decodeBody(r, &req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "username and password required")
		return
	}

	res, err := h.engine.Authenticate(r.Context(), riskAuth.AuthenticateRequest{
		Username:     req.Username,
		Password:     req.Password,
		MFAToken:     req.MFAToken,
		CaptchaToken: req.CaptchaToken,
	})
	if err != nil {
		h.fail(w, r, "authenticate", err)
		return
	}

	if res.Status == riskAuth.StatusChallengeRequired {
		_, code, _ := mapError(res.Err())
		body := challengeResponse{
			Status:     string(res.Status),
			Code:       code,
			Challenges: res.Challenges,
			MFAMethod:  res.MFAMethod,
		}
		if !res.MFAExpiresAt.IsZero() {
			body.MFAExpiresAt = &res.MFAExpiresAt
		}
		w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_user_authentication"`)
		writeJSON(w, http.StatusUnauthorized, body)
		return
	}

	writeSuccess(w, http.StatusOK, res.Tokens)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "refresh_token required")
		return
	}

	pair, err := h.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, "refresh", err)
		return
	}
	writeSuccess(w, http.StatusOK, pair)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "refresh_token required")
		return
	}

	if err := h.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := h.engine.LogoutAll(r.Context(), p.UserID); err != nil {
		h.fail(w, r, "logout_all", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setupMFA(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	enrollment, err := h.engine.SetupMFA(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, "mfa_setup", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeSuccess(w, http.StatusOK, enrollment)
}

func (h *handler) verifyMFA(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeBody(r, &req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "code required")
		return
	}

	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := h.engine.VerifyMFA(r.Context(), p.UserID, req.Code); err != nil {
		h.fail(w, r, "mfa_verify", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := decodeBody(r, &req); err != nil || req.Resource == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "resource and action required")
		return
	}

	p, _ := middleware.PrincipalFromContext(r.Context())
	subject, err := h.engine.SubjectFor(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, "permission_check", err)
		return
	}
	allowed, err := h.engine.CheckPermission(r.Context(), subject, req.Resource, req.Action, req.Attributes)
	if err != nil {
		h.fail(w, r, "permission_check", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, code, msg := mapError(err)
	fields := []any{"operation", operation, "status_code", status, "error_code", code}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "http operation failed", append(fields, "error", err)...)
	} else {
		h.logger.DebugContext(r.Context(), "http operation rejected", fields...)
	}
	if status == http.StatusUnauthorized && code == "STEP_UP_REQUIRED" {
		w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_user_authentication"`)
	}
	writeError(w, status, code, msg)
}
