// CLAUDE:SUMMARY chi control API: run status and start/pause/resume/stop per site, site configs, run log and staged products.
package scraper

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
	"github.com/hazyhaar/supplyscrape/shield"
)

// Handler returns the HTTP control API.
//
//	GET  /health
//	GET  /api/status
//	GET  /api/sites
//	GET  /api/sites/{id}
//	PUT  /api/sites/{id}
//	GET  /api/sites/{id}/status
//	POST /api/sites/{id}/{start|pause|resume|stop}
//	POST /api/sites/{id}/{activate|deactivate}
//	GET  /api/sites/{id}/runs
//	GET  /api/sites/{id}/staging
//	GET  /api/runs
//	GET  /api/runs/{id}
//	GET  /api/runs/{id}/products
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.logger) {
		r.Use(mw)
	}
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(shield.BasicAuth(s.cfg.HTTP.User, s.cfg.HTTP.PasswordHash))

		r.Get("/api/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, orEmpty(s.Statuses()))
		})

		r.Route("/api/sites", func(r chi.Router) {
			r.Get("/", s.handleListSites)
			r.Get("/{id}", s.handleGetSite)
			r.Put("/{id}", s.handlePutSite)
			r.Get("/{id}/status", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, s.Status(chi.URLParam(r, "id")))
			})
			r.Post("/{id}/start", s.handleStart)
			r.Post("/{id}/pause", s.control(s.PauseSite))
			r.Post("/{id}/resume", s.control(s.ResumeSite))
			r.Post("/{id}/stop", s.control(s.StopSite))
			r.Post("/{id}/activate", s.handleActive(true))
			r.Post("/{id}/deactivate", s.handleActive(false))
			r.Get("/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
				s.writeRuns(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/{id}/staging", s.handleStaging)
		})

		r.Get("/api/runs", func(w http.ResponseWriter, r *http.Request) {
			s.writeRuns(w, r, r.URL.Query().Get("site_id"))
		})
		r.Get("/api/runs/{id}", s.handleGetRun)
		r.Get("/api/runs/{id}/products", s.handleRunProducts)
	})

	return r
}

func (s *Service) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.Sites(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(sites))
}

func (s *Service) handleGetSite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	site, err := s.Site(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if site == nil {
		writeError(w, http.StatusNotFound, ErrUnknownSite)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Service) handlePutSite(w http.ResponseWriter, r *http.Request) {
	var site model.Site
	if err := json.NewDecoder(r.Body).Decode(&site); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	site.ID = chi.URLParam(r, "id")
	if err := site.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.PutSite(r.Context(), &site); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	runID, err := s.StartSite(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// control wraps a Pause/Resume/Stop call. A refused transition is a 409
// carrying the current status.
func (s *Service) control(fn func(string) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		code := http.StatusOK
		if !fn(id) {
			code = http.StatusConflict
		}
		writeJSON(w, code, s.Status(id))
	}
}

func (s *Service) handleActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := s.SetSiteActive(r.Context(), id, active); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": active})
	}
}

func (s *Service) writeRuns(w http.ResponseWriter, r *http.Request, siteID string) {
	runs, err := s.Runs(r.Context(), siteID, queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(runs))
}

func (s *Service) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.RunRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, errors.New("unknown run"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Service) handleRunProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.StagedByRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(products))
}

func (s *Service) handleStaging(w http.ResponseWriter, r *http.Request) {
	products, err := s.Staged(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(products))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownSite):
		return http.StatusNotFound
	case errors.Is(err, ErrRunActive):
		return http.StatusConflict
	case errors.Is(err, ErrReadOnlySites):
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// orEmpty keeps empty lists encoded as [] rather than null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
