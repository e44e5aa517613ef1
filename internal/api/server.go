// Package api exposes the entitlement core over HTTP. Authentication is
// external: an authenticating proxy is trusted to set the session identity
// headers, and every operational route re-runs the entitlement evaluation
// before the handler sees the request.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/saporia/saporia/internal/department"
	"github.com/saporia/saporia/internal/entitlement"
	"github.com/saporia/saporia/internal/globalconfig"
	"github.com/saporia/saporia/internal/profile"
	"github.com/saporia/saporia/internal/websocket"
	"github.com/saporia/saporia/internal/welcome"
)

// Session identity headers set by the external authenticating proxy.
const (
	HeaderSessionID    = "X-Session-Id"
	HeaderSessionEmail = "X-Session-Email"
)

// Server wires the entitlement core to HTTP routes.
type Server struct {
	store     profile.Store
	evaluator *entitlement.Evaluator
	lock      *department.Manager
	gate      *welcome.Gate
	globalCfg *globalconfig.Cache
	hub       *websocket.Hub

	superAdminEmail string
	nowFn           func() time.Time
}

// NewServer creates the API server.
func NewServer(store profile.Store, evaluator *entitlement.Evaluator, lock *department.Manager, gate *welcome.Gate, globalCfg *globalconfig.Cache, hub *websocket.Hub, superAdminEmail string) *Server {
	return &Server{
		store:           store,
		evaluator:       evaluator,
		lock:            lock,
		gate:            gate,
		globalCfg:       globalCfg,
		hub:             hub,
		superAdminEmail: superAdminEmail,
		nowFn:           time.Now,
	}
}

// Routes registers all handlers on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/access", s.withSession(s.handleAccess))
	mux.HandleFunc("/api/departments/request", s.withEntitlement(s.handleDepartmentRequest))
	mux.HandleFunc("/api/departments/confirm", s.withEntitlement(s.handleDepartmentConfirm))
	mux.HandleFunc("/api/welcome/accept", s.withEntitlement(s.handleWelcomeAccept))
	mux.HandleFunc("/api/global-config", s.handleGlobalConfig)

	mux.HandleFunc("/api/admin/subscription", s.withSession(s.handleAdminSubscription))
	mux.HandleFunc("/api/admin/global-config/refresh", s.withSession(s.handleGlobalConfigRefresh))

	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

type sessionCtxKey struct{}

// sessionInfo is the per-request resolved session: identity, profile (nil
// when missing) and the fresh access decision.
type sessionInfo struct {
	ID       string
	Email    string
	Profile  *profile.TenantProfile
	Decision entitlement.Decision
}

func sessionFrom(r *http.Request) *sessionInfo {
	info, _ := r.Context().Value(sessionCtxKey{}).(*sessionInfo)
	return info
}

// withSession resolves the session identity, fetches the profile and runs
// the evaluator, making the result available to the handler. The handler
// still runs when access is denied; use withEntitlement for routes that
// must be gated.
func (s *Server) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := &sessionInfo{
			ID:    r.Header.Get(HeaderSessionID),
			Email: r.Header.Get(HeaderSessionEmail),
		}

		if info.ID != "" {
			p, err := s.store.GetProfile(r.Context(), info.ID)
			if err == nil {
				info.Profile = p
			} else {
				log.Debug().Err(err).Str("tenant", info.ID).Msg("Profile fetch failed during request")
			}
		}
		info.Decision = s.evaluator.Evaluate(info.Profile, s.nowFn(), info.Email)

		ctx := context.WithValue(r.Context(), sessionCtxKey{}, info)
		next(w, r.WithContext(ctx))
	}
}

// withEntitlement additionally blocks the request unless the decision
// allows operation.
func (s *Server) withEntitlement(next http.HandlerFunc) http.HandlerFunc {
	return s.withSession(func(w http.ResponseWriter, r *http.Request) {
		info := sessionFrom(r)
		behavior := entitlement.GetBehavior(info.Decision)
		if behavior.Operations == entitlement.OpLocked {
			writeError(w, http.StatusForbidden, string(info.Decision.State), behavior.Description, map[string]interface{}{
				"reason": info.Decision.Reason,
			})
			return
		}
		next(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	tenantID := r.Header.Get(HeaderSessionID)
	if tenantID == "" {
		tenantID = r.URL.Query().Get("tenant")
	}
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "missing_tenant", "Session identity required", nil)
		return
	}
	s.hub.HandleWebSocket(w, r, tenantID)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, extra map[string]interface{}) {
	body := map[string]interface{}{
		"error":   code,
		"message": message,
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}
