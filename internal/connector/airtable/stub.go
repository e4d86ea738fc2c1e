package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	connhttp "github.com/nucleus/meno-sync/internal/connector/http"
	log "github.com/sirupsen/logrus"
)

// StubServer hosts an in-memory Airtable API for tests (no network listeners).
type StubServer struct {
	mu        sync.Mutex
	token     string
	bases     []*stubBase
	nextID    int
	fieldLog  []string
	batchLog  []int
	handler   http.Handler
	transport http.RoundTripper
	baseURL   string
}

type stubBase struct {
	base   Base
	tables []*stubTable
}

type stubTable struct {
	table   Table
	records []Record
}

// NewStubServer constructs an empty stub accepting the given token.
func NewStubServer(token string) *StubServer {
	s := &StubServer{
		token:   token,
		baseURL: "http://stub.airtable.local",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.handler = mux
	s.transport = &stubRoundTripper{handler: mux}
	return s
}

// Config returns a client configuration wired to the stub: in-process transport,
// no rate limiting and no real sleeping.
func (s *StubServer) Config(logger log.FieldLogger) *Config {
	httpConfig := connhttp.DefaultClientConfig()
	httpConfig.Transport = s.Transport()
	httpConfig.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return &Config{
		Token:     s.token,
		BaseURL:   s.URL(),
		RateLimit: -1,
		HTTP:      httpConfig,
		Logger:    logger,
	}
}

// URL returns the stub base URL (no network listener is used).
func (s *StubServer) URL() string {
	return s.baseURL
}

// Transport returns a RoundTripper that serves requests in-process.
func (s *StubServer) Transport() http.RoundTripper {
	return s.transport
}

// AddBase registers an empty base.
func (s *StubServer) AddBase(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bases = append(s.bases, &stubBase{base: Base{ID: id, Name: name, PermissionLevel: "create"}})
}

// Table returns a copy of the named table of a base.
func (s *StubServer) Table(baseID, name string) (Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.findTable(baseID, name); t != nil {
		return t.table, true
	}
	return Table{}, false
}

// Records returns a copy of the records of a table.
func (s *StubServer) Records(baseID, table string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.findTable(baseID, table)
	if t == nil {
		return nil
	}
	return append([]Record(nil), t.records...)
}

// FieldCreates returns the names of every field created through the API, in order.
func (s *StubServer) FieldCreates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fieldLog...)
}

// Batches returns the size of every record write request, in order.
func (s *StubServer) Batches() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.batchLog...)
}

func (s *StubServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+s.token {
		writeError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 3 && parts[1] == "meta" && parts[2] == "whoami":
		writeJSON(w, map[string]any{"id": "usrStub", "scopes": []string{"data.records:read", "data.records:write", "schema.bases:write"}})
	case len(parts) == 3 && parts[1] == "meta" && parts[2] == "bases":
		s.handleBases(w)
	case len(parts) == 5 && parts[1] == "meta" && parts[4] == "tables":
		s.handleTables(w, r, parts[3])
	case len(parts) == 7 && parts[1] == "meta" && parts[6] == "fields" && r.Method == http.MethodPost:
		s.handleCreateField(w, r, parts[3], parts[5])
	case len(parts) == 3 && parts[0] == "v0":
		s.handleRecords(w, r, parts[1], parts[2])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND")
	}
}

func (s *StubServer) handleBases(w http.ResponseWriter) {
	bases := make([]Base, 0, len(s.bases))
	for _, b := range s.bases {
		bases = append(bases, b.base)
	}
	writeJSON(w, map[string]any{"bases": bases})
}

func (s *StubServer) handleTables(w http.ResponseWriter, r *http.Request, baseID string) {
	base := s.findBase(baseID)
	if base == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	}

	switch r.Method {
	case http.MethodGet:
		tables := make([]Table, 0, len(base.tables))
		for _, t := range base.tables {
			tables = append(tables, t.table)
		}
		writeJSON(w, map[string]any{"tables": tables})
	case http.MethodPost:
		var req struct {
			Name   string  `json:"name"`
			Fields []Field `json:"fields"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || len(req.Fields) == 0 {
			writeError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_UNKNOWN")
			return
		}
		if s.findTable(baseID, req.Name) != nil {
			writeError(w, http.StatusUnprocessableEntity, "DUPLICATE_TABLE_NAME")
			return
		}
		table := Table{ID: s.newID("tbl"), Name: req.Name}
		for _, f := range req.Fields {
			f.ID = s.newID("fld")
			table.Fields = append(table.Fields, f)
		}
		table.PrimaryFieldID = table.Fields[0].ID
		base.tables = append(base.tables, &stubTable{table: table})
		writeJSON(w, table)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
	}
}

func (s *StubServer) handleCreateField(w http.ResponseWriter, r *http.Request, baseID, tableID string) {
	table := s.findTable(baseID, tableID)
	if table == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	}
	var field Field
	if err := json.NewDecoder(r.Body).Decode(&field); err != nil || field.Name == "" || field.Type == "" {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_UNKNOWN")
		return
	}
	if _, exists := table.table.Field(field.Name); exists {
		writeError(w, http.StatusUnprocessableEntity, "DUPLICATE_OR_EMPTY_FIELD_NAME")
		return
	}
	if field.Type == FieldMultipleRecordLinks {
		linked, _ := field.Options["linkedTableId"].(string)
		if s.findTable(baseID, linked) == nil {
			writeError(w, http.StatusUnprocessableEntity, "INVALID_FIELD_TYPE_OPTIONS")
			return
		}
	}
	field.ID = s.newID("fld")
	table.table.Fields = append(table.table.Fields, field)
	s.fieldLog = append(s.fieldLog, field.Name)
	writeJSON(w, field)
}

func (s *StubServer) handleRecords(w http.ResponseWriter, r *http.Request, baseID, tableRef string) {
	table := s.findTable(baseID, tableRef)
	if table == nil {
		writeError(w, http.StatusNotFound, "TABLE_NOT_FOUND")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.listRecords(w, r, table)
	case http.MethodPost, http.MethodPatch:
		var req struct {
			Records  []Record `json:"records"`
			Typecast bool     `json:"typecast"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_UNKNOWN")
			return
		}
		if len(req.Records) == 0 || len(req.Records) > MaxBatchSize {
			writeError(w, http.StatusUnprocessableEntity, "INVALID_RECORDS")
			return
		}
		for _, rec := range req.Records {
			for name := range rec.Fields {
				if _, ok := table.table.Field(name); !ok {
					writeError(w, http.StatusUnprocessableEntity, "UNKNOWN_FIELD_NAME")
					return
				}
			}
		}
		s.batchLog = append(s.batchLog, len(req.Records))

		out := make([]Record, 0, len(req.Records))
		for _, rec := range req.Records {
			if r.Method == http.MethodPost {
				rec.ID = s.newID("rec")
				rec.CreatedTime = "2024-01-01T00:00:00.000Z"
				table.records = append(table.records, rec)
				out = append(out, rec)
				continue
			}
			updated, ok := table.patch(rec)
			if !ok {
				writeError(w, http.StatusNotFound, "ROW_DOES_NOT_EXIST")
				return
			}
			out = append(out, updated)
		}
		writeJSON(w, map[string]any{"records": out})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
	}
}

func (s *StubServer) listRecords(w http.ResponseWriter, r *http.Request, table *stubTable) {
	pageSize := PageSize
	if n, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && n > 0 {
		pageSize = n
	}
	start := 0
	if off := r.URL.Query().Get("offset"); off != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(off, "itr"))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "LIST_RECORDS_ITERATOR_NOT_AVAILABLE")
			return
		}
		start = n
	}
	end := min(start+pageSize, len(table.records))
	if start > end {
		start = end
	}

	want := r.URL.Query()["fields[]"]
	page := make([]Record, 0, end-start)
	for _, rec := range table.records[start:end] {
		if len(want) > 0 {
			fields := map[string]any{}
			for _, f := range want {
				if v, ok := rec.Fields[f]; ok {
					fields[f] = v
				}
			}
			rec.Fields = fields
		}
		page = append(page, rec)
	}

	resp := map[string]any{"records": page}
	if end < len(table.records) {
		resp["offset"] = fmt.Sprintf("itr%d", end)
	}
	writeJSON(w, resp)
}

func (t *stubTable) patch(update Record) (Record, bool) {
	for i := range t.records {
		if t.records[i].ID != update.ID {
			continue
		}
		if t.records[i].Fields == nil {
			t.records[i].Fields = map[string]any{}
		}
		for k, v := range update.Fields {
			t.records[i].Fields[k] = v
		}
		return t.records[i], true
	}
	return Record{}, false
}

func (s *StubServer) findBase(id string) *stubBase {
	for _, b := range s.bases {
		if b.base.ID == id {
			return b
		}
	}
	return nil
}

// findTable resolves a table by id or by name, as the records API does.
func (s *StubServer) findTable(baseID, ref string) *stubTable {
	base := s.findBase(baseID)
	if base == nil {
		return nil
	}
	for _, t := range base.tables {
		if t.table.ID == ref || t.table.Name == ref {
			return t
		}
	}
	return nil
}

func (s *StubServer) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s%014d", prefix, s.nextID)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"type": kind}})
}

type stubRoundTripper struct {
	handler http.Handler
}

func (rt *stubRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rr := httptest.NewRecorder()
	rt.handler.ServeHTTP(rr, req)
	res := rr.Result()
	res.Request = req
	return res, nil
}
