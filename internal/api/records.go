package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/meur/boundlexx/internal/models"
	"github.com/meur/boundlexx/internal/store"
)

// recordList is the body of GET /api/{kind}.
type recordList struct {
	store.Status
	Items []models.Record `json:"items"`
}

// handleGetKinds returns the status of every store
func (s *Server) handleGetKinds(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.state.Statuses())
}

// handleGetRecords returns the records held for a kind.
// ?lang= starts a load for that locale unless the store already holds it,
// ?wait=true blocks until loaded.
func (s *Server) handleGetRecords(w http.ResponseWriter, r *http.Request) {
	table, ok := s.table(w, r)
	if !ok {
		return
	}

	if lang := r.URL.Query().Get("lang"); lang != "" && !holds(table, lang) {
		s.loader.Start(s.base, table.Kind(), lang)
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		if err := table.Require(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "Load did not finish")
			return
		}
	}

	respondJSON(w, http.StatusOK, recordList{
		Status: table.Status(),
		Items:  table.Records(),
	})
}

// handleGetRecord returns a single record by id
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	table, ok := s.table(w, r)
	if !ok {
		return
	}

	record, found := table.Lookup(chi.URLParam(r, "id"))
	if !found {
		respondError(w, http.StatusNotFound, "Record not found")
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// handleLoad starts a background load of a kind
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	table, ok := s.table(w, r)
	if !ok {
		return
	}

	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = s.opts.Locale
	}

	started := s.loader.Start(s.base, table.Kind(), lang)
	s.opts.Logger.Info("load requested",
		zap.String("kind", string(table.Kind())),
		zap.String("locale", lang),
		zap.Bool("started", started))

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"kind":    table.Kind(),
		"locale":  lang,
		"started": started,
	})
}

// handleGetSchema returns the schema the current client was built from
func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	_, raw, _ := s.state.Schema()
	if raw == nil {
		respondError(w, http.StatusNotFound, "Schema not loaded yet")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// holds reports whether table is fully loaded in locale. Kinds without
// translations hold every locale once loaded.
func holds(table store.Table, locale string) bool {
	st := table.Status()
	if !st.Loaded {
		return false
	}
	spec, err := table.Kind().Spec()
	if err != nil {
		return false
	}
	return !spec.Localized || st.Locale == locale
}

func (s *Server) table(w http.ResponseWriter, r *http.Request) (store.Table, bool) {
	table, err := s.state.Table(models.Kind(chi.URLParam(r, "kind")))
	if errors.Is(err, models.ErrUnknownKind) {
		respondError(w, http.StatusNotFound, "Unknown resource kind")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to resolve kind")
		return nil, false
	}
	return table, true
}
