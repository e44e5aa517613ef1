package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/saporia/saporia/internal/errors"
	"github.com/saporia/saporia/internal/profile"
)

// AdminSubscriptionBody mutates a tenant's administrative subscription
// state.
type AdminSubscriptionBody struct {
	TenantID string `json:"tenant_id"`
	Status   string `json:"status"`
	PlanType string `json:"plan_type"`
	EndDate  string `json:"end_date,omitempty"` // "2006-01-02", empty clears
}

// handleAdminSubscription handles POST /api/admin/subscription
// Super-admin only: sets status, plan and subscription end date.
func (s *Server) handleAdminSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.isSuperAdmin(r) {
		writeError(w, http.StatusForbidden, "forbidden", "Super-admin access required", nil)
		return
	}

	var body AdminSubscriptionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", nil)
		return
	}
	if body.TenantID == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "tenant_id is required", nil)
		return
	}

	status, ok := parseStatus(body.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_status",
			"Status must be one of: active, suspended, banned, or empty", nil)
		return
	}

	var endDate *profile.DateOnly
	if body.EndDate != "" {
		parsed, err := profile.ParseDateOnly(body.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date",
				"End date must be in YYYY-MM-DD form", nil)
			return
		}
		endDate = &parsed
	}

	updated, err := s.store.SetSubscription(r.Context(), body.TenantID, status, body.PlanType, endDate)
	if err != nil {
		if stderrors.Is(err, apperrors.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Tenant profile not found", nil)
			return
		}
		log.Error().Err(err).Str("tenant", body.TenantID).Msg("Subscription update failed")
		writeError(w, http.StatusBadGateway, "store_error", "Subscription update was not persisted", nil)
		return
	}

	log.Info().
		Str("tenant", updated.ID).
		Str("status", string(updated.SubscriptionStatus)).
		Str("plan", updated.Settings.RestaurantProfile.PlanType).
		Msg("Subscription updated")

	writeJSON(w, http.StatusOK, updated)
}

// handleGlobalConfigRefresh handles POST /api/admin/global-config/refresh
// Drops the cached global config so the next read refetches, and pushes
// the fresh value to all connected tenants. Invoked when the admin surface
// saves configuration.
func (s *Server) handleGlobalConfigRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.isSuperAdmin(r) {
		writeError(w, http.StatusForbidden, "forbidden", "Super-admin access required", nil)
		return
	}

	s.globalCfg.Invalidate()
	cfg := s.globalCfg.Get(r.Context())
	s.hub.BroadcastGlobalConfig(cfg)

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) isSuperAdmin(r *http.Request) bool {
	email := r.Header.Get(HeaderSessionEmail)
	return email != "" && strings.EqualFold(strings.TrimSpace(email), s.superAdminEmail)
}

func parseStatus(raw string) (profile.SubscriptionStatus, bool) {
	switch profile.SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case profile.StatusNone:
		return profile.StatusNone, true
	case profile.StatusActive:
		return profile.StatusActive, true
	case profile.StatusSuspended:
		return profile.StatusSuspended, true
	case profile.StatusBanned:
		return profile.StatusBanned, true
	}
	return profile.StatusNone, false
}
