package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/saporia/saporia/internal/department"
	"github.com/saporia/saporia/internal/entitlement"
	apperrors "github.com/saporia/saporia/internal/errors"
	"github.com/saporia/saporia/internal/globalconfig"
	"github.com/saporia/saporia/internal/metrics"
	"github.com/saporia/saporia/internal/profile"
)

// AccessResponse is the decision view returned to clients.
type AccessResponse struct {
	Decision entitlement.Decision      `json:"decision"`
	Behavior entitlement.StateBehavior `json:"behavior"`
}

// handleAccess handles GET /api/access
// Returns the freshly evaluated access decision for the session.
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := sessionFrom(r)
	writeJSON(w, http.StatusOK, AccessResponse{
		Decision: info.Decision,
		Behavior: entitlement.GetBehavior(info.Decision),
	})
}

// DepartmentRequestBody is the request body for department entry calls.
type DepartmentRequestBody struct {
	Department string `json:"department"`
}

// handleDepartmentRequest handles POST /api/departments/request
// Pure decision: no lock is written here.
func (s *Server) handleDepartmentRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dept, ok := decodeDepartment(w, r)
	if !ok {
		return
	}

	info := sessionFrom(r)
	result := s.lock.Request(info.Profile, dept)
	metrics.DepartmentLockOutcomes.WithLabelValues(string(result.Outcome)).Inc()
	writeJSON(w, http.StatusOK, result)
}

// handleDepartmentConfirm handles POST /api/departments/confirm
// Persists the irreversible department lock after operator confirmation.
func (s *Server) handleDepartmentConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dept, ok := decodeDepartment(w, r)
	if !ok {
		return
	}

	info := sessionFrom(r)
	updated, err := s.lock.Confirm(r.Context(), info.Profile, dept)
	if err != nil {
		switch {
		case stderrors.Is(err, apperrors.ErrDepartmentLocked):
			writeError(w, http.StatusConflict, "department_locked",
				"Tenant is already locked to a different department", nil)
		case stderrors.Is(err, apperrors.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_department", err.Error(), nil)
		default:
			log.Error().Err(err).Msg("Department lock confirmation failed")
			writeError(w, http.StatusBadGateway, "store_error",
				"Confirmation was not persisted; the lock did not take effect", nil)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"outcome":            department.OutcomeAllow,
		"allowed_department": updated.Settings.RestaurantProfile.AllowedDepartment,
	})
}

// WelcomeAcceptBody is the request body for accepting the welcome gate.
type WelcomeAcceptBody struct {
	DontShowAgain bool `json:"dont_show_again"`
}

// handleWelcomeAccept handles POST /api/welcome/accept
// Acceptance is only reported after the store confirms the write.
func (s *Server) handleWelcomeAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body WelcomeAcceptBody
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", nil)
			return
		}
	}

	info := sessionFrom(r)
	updated, err := s.gate.Accept(r.Context(), info.Profile, body.DontShowAgain)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error",
			"Acceptance was not persisted; the welcome gate is still due", nil)
		return
	}

	decision := s.evaluator.Evaluate(updated, s.nowFn(), info.Email)
	writeJSON(w, http.StatusOK, AccessResponse{
		Decision: decision,
		Behavior: entitlement.GetBehavior(decision),
	})
}

// GlobalConfigResponse is the display configuration with the promo
// countdown computed at read time.
type GlobalConfigResponse struct {
	Config        profile.GlobalConfig   `json:"config"`
	Promo         globalconfig.PromoView `json:"promo"`
	EffectiveCost float64                `json:"effective_cost"`
}

// handleGlobalConfig handles GET /api/global-config
// Best-effort display data; never participates in the access decision.
func (s *Server) handleGlobalConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := s.nowFn()
	cfg := s.globalCfg.Get(r.Context())
	writeJSON(w, http.StatusOK, GlobalConfigResponse{
		Config:        cfg,
		Promo:         globalconfig.BuildPromoView(cfg.Promo, now),
		EffectiveCost: globalconfig.EffectiveCost(cfg, now),
	})
}

func decodeDepartment(w http.ResponseWriter, r *http.Request) (profile.Department, bool) {
	var body DepartmentRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", nil)
		return profile.DepartmentNone, false
	}

	dept := profile.ParseDepartment(body.Department)
	if dept == profile.DepartmentNone {
		writeError(w, http.StatusBadRequest, "invalid_department",
			"Unknown department: "+body.Department, nil)
		return profile.DepartmentNone, false
	}
	return dept, true
}
