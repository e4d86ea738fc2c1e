package notion

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

// StubServer hosts an in-memory Notion API for tests (no network listeners).
type StubServer struct {
	mu        sync.Mutex
	token     string
	databases map[string][]string
	pages     map[string]*Page
	failing   map[string]bool
	queries   int
	nextID    int
	handler   http.Handler
	transport http.RoundTripper
	baseURL   string
}

// NewStubServer constructs an empty stub accepting the given token.
func NewStubServer(token string) *StubServer {
	s := &StubServer{
		token:     token,
		databases: map[string][]string{},
		pages:     map[string]*Page{},
		failing:   map[string]bool{},
		baseURL:   "http://stub.notion.local",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.handler = mux
	s.transport = &stubRoundTripper{handler: mux}
	return s
}

// Config returns a client configuration wired to the stub: in-process transport
// and no real sleeping.
func (s *StubServer) Config(logger log.FieldLogger) *Config {
	httpConfig := connhttp.DefaultClientConfig()
	httpConfig.Transport = s.Transport()
	httpConfig.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return &Config{
		Token:   s.token,
		BaseURL: s.URL(),
		HTTP:    httpConfig,
		Logger:  logger,
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

// AddPages appends pages to their parent databases, creating the databases as needed.
func (s *StubServer) AddPages(pages ...Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range pages {
		p := pages[i]
		db := p.Parent.DatabaseID
		s.databases[db] = append(s.databases[db], p.ID)
		s.pages[p.ID] = &p
	}
}

// AddDatabase registers an empty database.
func (s *StubServer) AddDatabase(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.databases[id]; !ok {
		s.databases[id] = nil
	}
}

// Fail makes every request touching the database or page id answer 503.
func (s *StubServer) Fail(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[id] = true
}

// Page returns a copy of a stored page.
func (s *StubServer) Page(id string) (Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[id]
	if !ok {
		return Page{}, false
	}
	return *p, true
}

// Queries returns the number of database query requests served.
func (s *StubServer) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func (s *StubServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+s.token {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if r.Header.Get("Notion-Version") == "" {
		writeError(w, http.StatusBadRequest, "missing_version")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	for _, part := range parts {
		if s.failing[part] {
			writeError(w, http.StatusServiceUnavailable, "service_unavailable")
			return
		}
	}

	switch {
	case len(parts) == 4 && parts[1] == "databases" && parts[3] == "query" && r.Method == http.MethodPost:
		s.handleQuery(w, r, parts[2])
	case len(parts) == 2 && parts[1] == "pages" && r.Method == http.MethodPost:
		s.handleCreate(w, r)
	case len(parts) == 3 && parts[1] == "pages" && r.Method == http.MethodGet:
		s.handleRetrieve(w, parts[2])
	case len(parts) == 3 && parts[1] == "pages" && r.Method == http.MethodPatch:
		s.handleUpdate(w, r, parts[2])
	case len(parts) == 3 && parts[1] == "users" && parts[2] == "me":
		writeJSON(w, map[string]any{"object": "user", "id": "stub-bot", "type": "bot"})
	case len(parts) == 5 && parts[1] == "pages" && parts[3] == "properties":
		s.handleProperty(w, parts[2], parts[4])
	default:
		writeError(w, http.StatusNotFound, "object_not_found")
	}
}

func (s *StubServer) handleQuery(w http.ResponseWriter, r *http.Request, databaseID string) {
	ids, ok := s.databases[databaseID]
	if !ok {
		writeError(w, http.StatusNotFound, "object_not_found")
		return
	}
	s.queries++

	var req struct {
		PageSize    int    `json:"page_size"`
		StartCursor string `json:"start_cursor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.PageSize <= 0 || req.PageSize > DefaultPageSize {
		req.PageSize = DefaultPageSize
	}
	start := 0
	if req.StartCursor != "" {
		n, err := strconv.Atoi(req.StartCursor)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error")
			return
		}
		start = n
	}
	end := min(start+req.PageSize, len(ids))
	if start > end {
		start = end
	}

	results := make([]*Page, 0, end-start)
	for _, id := range ids[start:end] {
		results = append(results, s.pages[id])
	}
	resp := map[string]any{
		"object":      "list",
		"results":     results,
		"has_more":    end < len(ids),
		"next_cursor": nil,
	}
	if end < len(ids) {
		resp["next_cursor"] = strconv.Itoa(end)
	}
	writeJSON(w, resp)
}

func (s *StubServer) handleRetrieve(w http.ResponseWriter, id string) {
	p, ok := s.pages[id]
	if !ok {
		writeError(w, http.StatusNotFound, "object_not_found")
		return
	}
	writeJSON(w, p)
}

func (s *StubServer) handleProperty(w http.ResponseWriter, pageID, propertyID string) {
	p, ok := s.pages[pageID]
	if !ok {
		writeError(w, http.StatusNotFound, "object_not_found")
		return
	}
	raw, ok := p.Properties[propertyID]
	if !ok {
		writeError(w, http.StatusNotFound, "object_not_found")
		return
	}
	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_server_error")
		return
	}
	item["object"] = "property_item"
	writeJSON(w, item)
}

func (s *StubServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Parent     Parent                     `json:"parent"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if _, ok := s.databases[req.Parent.DatabaseID]; !ok {
		writeError(w, http.StatusNotFound, "object_not_found")
		return
	}
	s.nextID++
	p := &Page{
		Object:     "page",
		ID:         fmt.Sprintf("00000000-0000-0000-0000-%012d", s.nextID),
		Parent:     req.Parent,
		Properties: req.Properties,
	}
	s.pages[p.ID] = p
	s.databases[req.Parent.DatabaseID] = append(s.databases[req.Parent.DatabaseID], p.ID)
	writeJSON(w, p)
}

func (s *StubServer) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := s.pages[id]
	if !ok {
		writeError(w, http.StatusNotFound, "object_not_found")
		return
	}
	var req struct {
		Properties map[string]json.RawMessage `json:"properties"`
		InTrash    bool                       `json:"in_trash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if p.Properties == nil {
		p.Properties = map[string]json.RawMessage{}
	}
	for k, v := range req.Properties {
		p.Properties[k] = v
	}
	p.InTrash = req.InTrash
	writeJSON(w, p)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "error", "status": status, "code": code})
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
