package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/meur/boundlexx/internal/models"
)

const apiPrefix = "/api/v1"

// FakeAPI serves a schema and paginated list endpoints for every kind.
type FakeAPI struct {
	*httptest.Server

	// JSON makes list endpoints ignore format=msgpack and answer in JSON.
	JSON bool

	SchemaHits atomic.Int64

	mu          sync.Mutex
	collections map[models.Kind]map[string][]models.Record // kind -> lang -> records
	failures    map[models.Kind]int
	hidden      map[string]bool
	requests    []string
	schemaDown  bool
}

// NewFakeAPI starts a fake API and closes it with the test.
func NewFakeAPI(t testing.TB) *FakeAPI {
	t.Helper()

	f := &FakeAPI{
		collections: make(map[models.Kind]map[string][]models.Record),
		failures:    make(map[models.Kind]int),
		hidden:      make(map[string]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(apiPrefix+"/schema/", f.handleSchema)
	mux.HandleFunc(apiPrefix+"/", f.handleList)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// APIBase is the value for the accessor's APIBase option.
func (f *FakeAPI) APIBase() string {
	return f.URL + apiPrefix
}

// SetCollection sets the records served for kind. lang "" matches any
// language without a collection of its own.
func (f *FakeAPI) SetCollection(kind models.Kind, lang string, records []models.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collections[kind] == nil {
		f.collections[kind] = make(map[string][]models.Record)
	}
	f.collections[kind][lang] = records
}

// FailNext makes the next n list requests for kind answer 503.
func (f *FakeAPI) FailNext(kind models.Kind, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[kind] = n
}

// HideOperation drops an operation from the schema.
func (f *FakeAPI) HideOperation(operationID string, hidden bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden[operationID] = hidden
}

// SchemaDown makes the schema endpoint answer 500.
func (f *FakeAPI) SchemaDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemaDown = down
}

// Requests returns the request URIs of list calls in arrival order.
func (f *FakeAPI) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *FakeAPI) handleSchema(w http.ResponseWriter, r *http.Request) {
	f.SchemaHits.Add(1)

	f.mu.Lock()
	down := f.schemaDown
	paths := map[string]interface{}{}
	for _, spec := range models.Kinds {
		if f.hidden[spec.OperationID] {
			continue
		}
		paths[apiPrefix+"/"+string(spec.Kind)+"/"] = map[string]interface{}{
			"get": map[string]interface{}{
				"operationId": spec.OperationID,
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "ok"},
				},
			},
		}
	}
	f.mu.Unlock()

	if down {
		http.Error(w, "schema unavailable", http.StatusInternalServerError)
		return
	}

	doc := map[string]interface{}{
		"openapi": "3.0.2",
		"info":    map[string]interface{}{"title": "Boundlexx", "version": "1.0.0"},
		"servers": []interface{}{map[string]interface{}{"url": "http://" + r.Host}},
		"paths":   paths,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (f *FakeAPI) handleList(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, apiPrefix), "/")
	kind, err := models.ParseKind(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	lang := q.Get("lang")

	f.mu.Lock()
	f.requests = append(f.requests, r.URL.RequestURI())
	failing := f.failures[kind] > 0
	if failing {
		f.failures[kind]--
	}
	records, ok := f.collections[kind][lang]
	if !ok {
		records = f.collections[kind][""]
	}
	f.mu.Unlock()

	if failing {
		http.Error(w, "try again later", http.StatusServiceUnavailable)
		return
	}

	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset > len(records) {
		offset = len(records)
	}
	end := min(offset+limit, len(records))

	results := make([]interface{}, 0, end-offset)
	for _, rec := range records[offset:end] {
		results = append(results, map[string]interface{}(rec))
	}

	var next interface{}
	if end < len(records) {
		nq := r.URL.Query()
		nq.Set("offset", strconv.Itoa(end))
		nq.Set("limit", strconv.Itoa(limit))
		next = fmt.Sprintf("http://%s%s?%s", r.Host, r.URL.Path, nq.Encode())
	}

	body := map[string]interface{}{
		"count":   len(records),
		"next":    next,
		"results": results,
	}

	if q.Get("format") == "msgpack" && !f.JSON {
		payload, err := Compact(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/msgpack")
		w.Write(payload)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

// Records builds n records with ids start..start+n-1 in field idField.
func Records(idField string, start, n int) []models.Record {
	out := make([]models.Record, n)
	for i := range out {
		id := start + i
		out[i] = models.Record{idField: id, "name": fmt.Sprintf("record %d", id)}
	}
	return out
}
