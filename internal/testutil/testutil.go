// Package testutil provides shared test helpers: a fake Cetus API server and
// record builders.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/cetus/internal/models"
)

// Record builds a record for index with a fresh uuid.
func Record(index models.Index, host string, ts time.Time) models.Record {
	return models.RecordOf(
		"uuid", uuid.NewString(),
		"host", host,
		index.TimestampField(), models.FormatTimestamp(ts),
	)
}

// Records builds n records one second apart starting at start.
func Records(index models.Index, start time.Time, n int) []models.Record {
	out := make([]models.Record, n)
	for i := range out {
		out[i] = Record(index, "h"+strconv.Itoa(i)+".example.com", start.Add(time.Duration(i)*time.Second))
	}
	return out
}

// QueryCall is one request received by the query endpoint.
type QueryCall struct {
	Query string `json:"query"`
	Index string `json:"index"`
	Media string `json:"media"`
	PitID string `json:"pit_id"`
}

// FakeAPI is an in-process stand-in for the search API. The query endpoint
// honours the inclusive timestamp range filter and pages PageSize records at
// a time in ascending timestamp order (or descending with Reverse).
type FakeAPI struct {
	Server *httptest.Server
	APIKey string

	mu           sync.Mutex
	records      map[models.Index][]models.Record
	pageSize     int
	reverse      bool
	failStatus   int
	failAfter    int
	calls        []QueryCall
	alerts       []models.Alert
	alertQueries map[int]string
	alertResults map[int][]models.Record
}

var rangeRe = regexp.MustCompile(`_timestamp:\[(\S+) TO (\S+)\]`)

// NewFakeAPI starts a fake server that is closed when the test ends.
func NewFakeAPI(t *testing.T, apiKey string) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		APIKey:       apiKey,
		records:      make(map[models.Index][]models.Record),
		pageSize:     10000,
		failAfter:    -1,
		alertQueries: make(map[int]string),
		alertResults: make(map[int][]models.Record),
	}

	r := chi.NewRouter()
	r.Use(f.auth)
	r.Post("/api/query/", f.query)
	r.Get("/alerts/api/unified/", f.listAlerts)
	r.Get("/alerts/api/unified/{id}/", f.getAlert)
	r.Get("/api/alert_results/{id}", f.alertResultsHandler)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the server.
func (f *FakeAPI) URL() string { return f.Server.URL }

// Add appends records to index.
func (f *FakeAPI) Add(index models.Index, recs ...models.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[index] = append(f.records[index], recs...)
}

// SetPageSize changes how many records a page holds.
func (f *FakeAPI) SetPageSize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageSize = n
}

// SetReverse makes pages come back newest first.
func (f *FakeAPI) SetReverse(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverse = v
}

// FailWith lets the first n query requests succeed and answers every later
// one with status.
func (f *FakeAPI) FailWith(status, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStatus = status
	f.failAfter = n
}

// Calls returns the query requests received so far.
func (f *FakeAPI) Calls() []QueryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]QueryCall(nil), f.calls...)
}

// AddAlert registers an alert definition with its query and stored results.
func (f *FakeAPI) AddAlert(a models.Alert, query string, results ...models.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	f.alertQueries[a.ID] = query
	f.alertResults[a.ID] = results
}

func (f *FakeAPI) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token "+f.APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "internal auth backend says no"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeAPI) query(w http.ResponseWriter, r *http.Request) {
	var call QueryCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failAfter >= 0 && len(f.calls) > f.failAfter {
		writeJSON(w, f.failStatus, map[string]string{"error": "backend unavailable"})
		return
	}

	index := models.Index(call.Index)
	var lower, upper time.Time
	if m := rangeRe.FindStringSubmatch(call.Query); m != nil {
		if m[1] != "*" {
			lower, _ = models.ParseTimestamp(m[1])
		}
		if m[2] != "*" {
			upper, _ = models.ParseTimestamp(m[2])
		}
	}

	var hits []models.Record
	for _, rec := range f.records[index] {
		ts, err := rec.Timestamp(index)
		if err != nil {
			continue
		}
		if !lower.IsZero() && ts.Before(lower) {
			continue
		}
		if !upper.IsZero() && ts.After(upper) {
			continue
		}
		hits = append(hits, rec)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, _ := hits[i].Timestamp(index)
		b, _ := hits[j].Timestamp(index)
		if f.reverse {
			return a.After(b)
		}
		return a.Before(b)
	})
	if len(hits) > f.pageSize {
		hits = hits[:f.pageSize]
	}
	if hits == nil {
		hits = []models.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   hits,
		"pit_id": "pit-" + strconv.Itoa(len(f.calls)),
	})
}

func (f *FakeAPI) listAlerts(w http.ResponseWriter, r *http.Request) {
	owned := r.URL.Query().Get("owned") == "true"
	shared := r.URL.Query().Get("shared") == "true"
	kind := r.URL.Query().Get("type_filter")

	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Alert{}
	for _, a := range f.alerts {
		if (a.Owned && !owned) || (!a.Owned && !shared) {
			continue
		}
		if kind != "" && a.AlertType != kind {
			continue
		}
		out = append(out, a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (f *FakeAPI) getAlert(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alerts {
		if a.ID == id {
			writeJSON(w, http.StatusOK, map[string]any{
				"id":          a.ID,
				"alert_type":  a.AlertType,
				"title":       a.Title,
				"description": a.Description,
				"query":       f.alertQueries[id],
				"owned":       a.Owned,
			})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
}

func (f *FakeAPI) alertResultsHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	f.mu.Lock()
	defer f.mu.Unlock()
	res := f.alertResults[id]
	if since := r.URL.Query().Get("since"); since != "" {
		cut, err := models.ParseTimestamp(strings.TrimSpace(since))
		if err == nil {
			var kept []models.Record
			for _, rec := range res {
				if ts, err := rec.Timestamp(models.IndexAlerting); err == nil && ts.After(cut) {
					kept = append(kept, rec)
				}
			}
			res = kept
		}
	}
	if res == nil {
		res = []models.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": res})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
