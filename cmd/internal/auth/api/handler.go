package api

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"sessiond/cmd/internal/auth"
	"sessiond/cmd/internal/auth/session"
)

const routePrefix = "/api/v1/auth"

// Handler wires HTTP auth endpoints to the auth service.
type Handler struct {
	log  *slog.Logger
	cfg  Config
	svc  *auth.Service
	gate Gate
}

// NewHandler constructs an auth Handler. gate may be nil when storage needs no
// connection (memory backend).
func NewHandler(log *slog.Logger, svc *auth.Service, gate Gate, cfg Config) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if svc == nil {
		return nil, errors.New("authapi: nil auth service")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Handler{log: log, cfg: cfg, svc: svc, gate: gate}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST "+routePrefix+"/register", h.requireDB(h.handleRegister))
	mux.HandleFunc("POST "+routePrefix+"/login", h.requireDB(h.handleLogin))
	mux.HandleFunc("POST "+routePrefix+"/refresh-token", h.requireDB(h.handleRefresh))
	mux.HandleFunc("POST "+routePrefix+"/logout", h.requireDB(h.handleLogout))
	mux.HandleFunc("GET "+routePrefix+"/me", h.requireDB(h.handleMe))
	mux.HandleFunc("PUT "+routePrefix+"/me", h.requireDB(h.handleUpdateMe))
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := h.svc.Register(r.Context(), auth.RegisterInput{
		FullName:        req.FullName,
		Email:           req.Email,
		Password:        req.Password,
		ProfileImageURL: req.ProfileImageURL,
	}, h.meta(r))
	if err != nil {
		h.writeAuthError(w, "auth.register.fail", err)
		return
	}

	h.audit(r, "auth.register.success", slog.String("user_id", res.User.ID))
	h.setRefreshCookie(w, res.Session.RefreshToken, res.Session.RefreshExp)
	writeJSON(w, http.StatusCreated, toAuthResponse(res))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password, h.meta(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.audit(r, "auth.login.failed")
		}
		h.writeAuthError(w, "auth.login.fail", err)
		return
	}

	h.audit(r, "auth.login.success",
		slog.String("user_id", res.User.ID),
		slog.String("session_id", res.Session.SessionID),
	)
	h.setRefreshCookie(w, res.Session.RefreshToken, res.Session.RefreshExp)
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
	}
	secret, ok := h.refreshSecret(r, req.RefreshToken)
	if !ok {
		writeError(w, http.StatusUnauthorized, "refresh_invalid", "refresh token is required")
		return
	}

	issued, err := h.svc.Refresh(r.Context(), secret, h.meta(r))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrReuseDetected):
			h.audit(r, "auth.refresh.reuse_detected")
			h.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "refresh_reuse_detected", "refresh token reuse detected")
		case errors.Is(err, session.ErrExpired):
			h.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "refresh_expired", "refresh token expired")
		case errors.Is(err, session.ErrInvalid):
			writeError(w, http.StatusUnauthorized, "refresh_invalid", "invalid refresh token")
		default:
			h.log.Error("auth.refresh.fail", slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.audit(r, "auth.refresh.success", slog.String("session_id", issued.SessionID))
	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExp)
	writeJSON(w, http.StatusOK, toRefreshResponse(issued))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		// A malformed body still logs out; the cookie is the primary carrier.
		_ = decodeJSON(w, r, h.cfg.MaxBodyBytes, &req)
	}
	if secret, ok := h.refreshSecret(r, req.RefreshToken); ok {
		_ = h.svc.Logout(r.Context(), secret)
	}

	h.audit(r, "auth.logout")
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	u, err := h.svc.Profile(r.Context(), userID)
	if err != nil {
		h.writeAuthError(w, "auth.me.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	u, err := h.svc.UpdateProfile(r.Context(), userID, req.input())
	if err != nil {
		h.writeAuthError(w, "auth.me.update.fail", err)
		return
	}
	h.audit(r, "auth.profile.updated", slog.String("user_id", userID))
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// ---- helpers ----

// writeAuthError maps auth service errors onto the error envelope.
func (h *Handler) writeAuthError(w http.ResponseWriter, event string, err error) {
	var (
		rl auth.RateLimitError
		ie auth.InputError
	)
	switch {
	case errors.As(err, &rl):
		writeRateLimited(w, rl.RetryAfter)
	case errors.Is(err, auth.ErrEmailInUse):
		writeError(w, http.StatusConflict, "email_in_use", "email already in use")
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, "invalid_request", ie.Msg)
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	default:
		h.log.Error(event, slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	userID, err := h.svc.Authenticate(token)
	if err != nil {
		if errors.Is(err, session.ErrAccessTokenExpired) {
			writeError(w, http.StatusUnauthorized, "access_token_expired", "access token expired")
			return "", false
		}
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return "", false
	}
	return userID, true
}

func (h *Handler) meta(r *http.Request) session.Meta {
	return session.Meta{
		UserAgent: truncate(strings.TrimSpace(r.UserAgent()), 512),
		IP:        clientIP(r, h.cfg.TrustProxy),
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// clientIP returns the caller's address, or "" when it cannot be parsed.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip.String()
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return ""
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
