package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-guardian/server/devices"
	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
	"github.com/mattermost/mattermost-plugin-guardian/server/marketplace"
	"github.com/mattermost/mattermost-plugin-guardian/server/session"
	"github.com/mattermost/mattermost-plugin-guardian/server/store"
)

const userIDHeader = "Mattermost-User-ID"

// ServeHTTP handles HTTP requests for the plugin.
// The root URL is currently <siteUrl>/plugins/com.mattermost.plugin-guardian/api/v1/.
func (p *Plugin) ServeHTTP(c *plugin.Context, w http.ResponseWriter, r *http.Request) {
	p.router().ServeHTTP(w, r)
}

func (p *Plugin) router() *mux.Router {
	router := mux.NewRouter()

	// Middleware to require that the user is logged in
	router.Use(p.MattermostAuthorizationRequired)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()

	apiRouter.HandleFunc("/state", p.handleState).Methods(http.MethodGet)
	apiRouter.HandleFunc("/register", p.handleRegister).Methods(http.MethodPost)
	apiRouter.HandleFunc("/logout", p.command((*session.Controller).Logout)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/scan", p.command((*session.Controller).Scan)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/sos", p.command((*session.Controller).TriggerSOS)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/cancel", p.command((*session.Controller).Cancel)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/debrief", p.handleDebrief).Methods(http.MethodPost)

	apiRouter.HandleFunc("/marketplace", p.handleMarketplace).Methods(http.MethodGet)
	apiRouter.HandleFunc("/marketplace/open", p.command((*session.Controller).OpenMarketplace)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/marketplace/close", p.command((*session.Controller).CloseMarketplace)).Methods(http.MethodPost)

	apiRouter.HandleFunc("/location", p.handleLocation).Methods(http.MethodPost)
	apiRouter.HandleFunc("/location/error", p.handleLocationError).Methods(http.MethodPost)

	apiRouter.HandleFunc("/map", p.handleMap).Methods(http.MethodGet)
	apiRouter.HandleFunc("/incidents", p.handleIncidents).Methods(http.MethodGet)
	apiRouter.HandleFunc("/incidents", p.handleClearIncidents).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/metrics", p.handleMetrics).Methods(http.MethodGet)

	return router
}

func (p *Plugin) MattermostAuthorizationRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userIDHeader)
		if userID == "" {
			http.Error(w, "Not authorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// stateResponse is the snapshot with the unmasked identity, returned only to
// its owner on request.
type stateResponse struct {
	session.Snapshot
	Identity *store.Identity `json:"identity,omitempty"`
}

type debriefRequest struct {
	Reason string `json:"reason"`
}

type locationErrorRequest struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// session returns the caller's session, creating it on first contact. It
// writes the error response and returns nil when no session is available.
func (p *Plugin) session(w http.ResponseWriter, r *http.Request) *session.Controller {
	userID := r.Header.Get(userIDHeader)

	c, err := p.sessions.GetOrCreate(userID)
	if c == nil {
		p.API.LogError("Failed to get session", "userId", userID, "error", errString(err))
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return nil
	}
	if err != nil {
		p.API.LogWarn("Failed to restore session", "userId", userID, "error", err.Error())
	}
	return c
}

// command adapts a session command that cannot fail into a handler that
// returns the resulting snapshot. Ignored commands return the unchanged state.
func (p *Plugin) command(run func(*session.Controller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := p.session(w, r)
		if c == nil {
			return
		}

		run(c)
		p.writeJSON(w, http.StatusOK, c.Snapshot())
	}
}

func (p *Plugin) handleState(w http.ResponseWriter, r *http.Request) {
	c := p.session(w, r)
	if c == nil {
		return
	}

	response := stateResponse{Snapshot: c.Snapshot()}
	if r.URL.Query().Get("full") == "true" {
		response.Identity = c.Identity()
	} else {
		response.Identity = response.Snapshot.Identity
	}

	p.writeJSON(w, http.StatusOK, response)
}

func (p *Plugin) handleRegister(w http.ResponseWriter, r *http.Request) {
	c := p.session(w, r)
	if c == nil {
		return
	}

	var identity store.Identity
	if err := json.NewDecoder(r.Body).Decode(&identity); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := c.Register(identity); err != nil {
		if errors.Is(err, store.ErrInvalidRegistration) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p.API.LogError("Failed to register identity", "userId", c.UserID(), "error", err.Error())
		http.Error(w, "Failed to register", http.StatusInternalServerError)
		return
	}

	p.writeJSON(w, http.StatusOK, c.Snapshot())
}

func (p *Plugin) handleDebrief(w http.ResponseWriter, r *http.Request) {
	c := p.session(w, r)
	if c == nil {
		return
	}

	var request debriefRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := c.SubmitDebrief(request.Reason); err != nil {
		if errors.Is(err, session.ErrDebriefTooShort) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p.API.LogError("Failed to submit debrief", "userId", c.UserID(), "error", err.Error())
		http.Error(w, "Failed to submit debrief", http.StatusInternalServerError)
		return
	}

	p.writeJSON(w, http.StatusOK, c.Snapshot())
}

func (p *Plugin) handleMarketplace(w http.ResponseWriter, r *http.Request) {
	c := p.session(w, r)
	if c == nil {
		return
	}

	p.writeJSON(w, http.StatusOK, marketplace.NewListing(c.Location()))
}

func (p *Plugin) handleLocation(w http.ResponseWriter, r *http.Request) {
	c := p.session(w, r)
	if c == nil {
		return
	}

	var loc intel.Location
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := c.ReportLocation(loc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.writeJSON(w, http.StatusOK, c.Snapshot())
}

func (p *Plugin) handleLocationError(w http.ResponseWriter, r *http.Request) {
	c := p.session(w, r)
	if c == nil {
		return
	}

	var request locationErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	message := request.Message
	if message == "" {
		message = "position unavailable"
	}

	c.ReportLocationError(errors.Errorf("geolocation error %d: %s", request.Code, message))
	p.writeJSON(w, http.StatusOK, c.Snapshot())
}

// handleMap exports the user's position, zones and devices as GeoJSON.
func (p *Plugin) handleMap(w http.ResponseWriter, r *http.Request) {
	c := p.session(w, r)
	if c == nil {
		return
	}

	snapshot := c.Snapshot()

	var zones []intel.Zone
	if snapshot.Report != nil {
		zones = snapshot.Report.TacticalZones
	}

	data, err := devices.Overlay(snapshot.Location, zones, snapshot.Devices).MarshalJSON()
	if err != nil {
		p.API.LogError("Failed to marshal map overlay", "userId", c.UserID(), "error", err.Error())
		http.Error(w, "Failed to render map", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	if _, err := w.Write(data); err != nil {
		p.API.LogWarn("Failed to write map overlay", "error", err.Error())
	}
}

func (p *Plugin) handleIncidents(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	incidents, err := p.incidents.List(userID)
	if err != nil {
		p.API.LogError("Failed to list incidents", "userId", userID, "error", err.Error())
		http.Error(w, "Failed to list incidents", http.StatusInternalServerError)
		return
	}

	p.writeJSON(w, http.StatusOK, incidents)
}

func (p *Plugin) handleClearIncidents(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	if err := p.incidents.DeleteAll(userID); err != nil {
		p.API.LogError("Failed to clear incidents", "userId", userID, "error", err.Error())
		http.Error(w, "Failed to clear incidents", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleMetrics serves the Prometheus metrics to system admins.
func (p *Plugin) handleMetrics(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if !p.API.HasPermissionTo(userID, model.PermissionManageSystem) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	p.metrics.Handler().ServeHTTP(w, r)
}

func (p *Plugin) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		p.API.LogWarn("Failed to write response", "error", err.Error())
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
