package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/campaignkit/socialscrape/internal/logging"
	"github.com/campaignkit/socialscrape/internal/scraper"
)

// ConfigAPI manages the runtime credential configuration. Values are held
// in memory only; the endpoints never echo a configured secret back.
type ConfigAPI struct {
	scraper *scraper.Scraper
	logger  *logging.Logger
}

func NewConfigAPI(sc *scraper.Scraper, logger *logging.Logger) *ConfigAPI {
	return &ConfigAPI{
		scraper: sc,
		logger:  logger,
	}
}

func (a *ConfigAPI) RegisterRoutes(mux *http.ServeMux, middleware func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("/api/config/credential", middleware(a.handleCredential))
	mux.HandleFunc("/api/config/session", middleware(a.handleSession))
	mux.HandleFunc("/api/config/status", middleware(a.handleStatus))
}

func (a *ConfigAPI) handleCredential(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		var body struct {
			Key string `json:"key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "request body is not valid JSON")
			return
		}
		if body.Key == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "key is required")
			return
		}
		a.scraper.SetCredential(body.Key)
		a.logger.Info("API credential configured")
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})

	case http.MethodDelete:
		a.scraper.ClearCredential()
		a.logger.Info("API credential cleared")
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *ConfigAPI) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		var body struct {
			Cookie    string `json:"cookie"`
			CSRFToken string `json:"csrfToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "request body is not valid JSON")
			return
		}
		if body.Cookie == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "cookie is required")
			return
		}
		a.scraper.SetSession(body.Cookie, body.CSRFToken)
		a.logger.Info("Session configured")
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})

	case http.MethodDelete:
		a.scraper.ClearSession()
		a.logger.Info("Session cleared")
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *ConfigAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{
		"credentialConfigured": a.scraper.HasCredential(),
		"sessionConfigured":    a.scraper.HasSession(),
	})
}
