package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campaignkit/socialscrape/internal/logging"
	"github.com/campaignkit/socialscrape/internal/models"
	"github.com/campaignkit/socialscrape/internal/scraper"
)

const scrapeRequestTimeout = 2 * time.Minute

type Server struct {
	scraper *scraper.Scraper
	logger  *logging.Logger
	server  *http.Server
}

func New(sc *scraper.Scraper, logger *logging.Logger) *Server {
	return &Server{
		scraper: sc,
		logger:  logger,
	}
}

func (s *Server) Start(addr string) error {
	mux := s.routes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: scrapeRequestTimeout + 15*time.Second,
	}

	s.logger.Info("HTTP API server starting", logging.WithField("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Scrape routes
	mux.HandleFunc("/api/scrape", s.corsMiddleware(s.handleScrape))
	mux.HandleFunc("/api/scrape/batch", s.corsMiddleware(s.handleScrapeBatch))
	mux.HandleFunc("/api/avatar", s.corsMiddleware(s.handleAvatar))

	// Credential configuration routes
	configAPI := NewConfigAPI(s.scraper, s.logger)
	configAPI.RegisterRoutes(mux, s.corsMiddleware)

	// Health check and metrics
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.scraper.Metrics().Registry, promhttp.HandlerOpts{}))

	return mux
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Decode over a defaulted request so omitted fields keep their
	// documented defaults (50 items, retweets included).
	req := models.NewRequest("")
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "request body is not valid JSON")
		return
	}
	if req.Handle == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "handle is required")
		return
	}
	if req.MaxItems <= 0 {
		req.MaxItems = 50
	}

	ctx, cancel := context.WithTimeout(r.Context(), scrapeRequestTimeout)
	defer cancel()

	outcome := s.scraper.Scrape(ctx, req)
	writeJSON(w, http.StatusOK, outcome)
}

type batchRequest struct {
	Handles      []string `json:"handles"`
	Keywords     []string `json:"keywords,omitempty"`
	MaxPerHandle int      `json:"maxPerHandle,omitempty"`
}

func (s *Server) handleScrapeBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "request body is not valid JSON")
		return
	}
	if len(req.Handles) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "handles is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scrapeRequestTimeout)
	defer cancel()

	results := s.scraper.ScrapeMany(ctx, req.Handles, req.Keywords, req.MaxPerHandle)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	handle := r.URL.Query().Get("handle")
	if handle == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "handle query parameter is required")
		return
	}

	result := s.scraper.ResolveAvatar(r.Context(), handle)
	if result.URL == "" {
		writeError(w, http.StatusNotFound, "not_found", "no avatar found for handle")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
