package notion

import (
	"encoding/json"
	"time"

	"github.com/nucleus/meno-sync/internal/codec"
	"github.com/nucleus/meno-sync/internal/connector/http"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds Notion connection configuration.
type Config struct {
	// Token is the integration secret.
	Token string `json:"token"`

	// BaseURL defaults to https://api.notion.com.
	BaseURL string `json:"baseUrl,omitempty"`

	// Version is sent as the Notion-Version header.
	Version string `json:"version,omitempty"`

	// PageSize is the number of pages requested per query call.
	PageSize int `json:"pageSize,omitempty"`

	// PageDelay is waited between consecutive page fetches.
	PageDelay time.Duration `json:"pageDelay,omitempty"`

	// HTTP overrides the transport settings (retries, sleep, round tripper).
	HTTP *http.ClientConfig `json:"-"`

	Logger log.FieldLogger `json:"-"`
}

const (
	// DefaultBaseURL is the public API host.
	DefaultBaseURL = "https://api.notion.com"
	// DefaultVersion is the API version the client speaks.
	DefaultVersion = "2022-06-28"
	// DefaultPageSize is the API maximum.
	DefaultPageSize = 100
	// DefaultPageDelay spaces page fetches.
	DefaultPageDelay = 500 * time.Millisecond
)

// ErrMissingToken is returned by Validate when no token is configured.
var ErrMissingToken = errors.New("notion token is required")

// Validate fills defaults and checks required fields.
func (c *Config) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.PageSize <= 0 || c.PageSize > DefaultPageSize {
		c.PageSize = DefaultPageSize
	}
	if c.PageDelay == 0 {
		c.PageDelay = DefaultPageDelay
	}
	if c.Logger == nil {
		c.Logger = log.StandardLogger()
	}
	return nil
}

// =============================================================================
// API RESPONSE TYPES
// =============================================================================

// Parent identifies the container of a page.
type Parent struct {
	Type       string `json:"type"`
	DatabaseID string `json:"database_id,omitempty"`
	PageID     string `json:"page_id,omitempty"`
}

// Page is a source record: a page with typed properties.
type Page struct {
	Object         string                     `json:"object"`
	ID             string                     `json:"id"`
	CreatedTime    string                     `json:"created_time,omitempty"`
	LastEditedTime string                     `json:"last_edited_time,omitempty"`
	InTrash        bool                       `json:"in_trash,omitempty"`
	URL            string                     `json:"url,omitempty"`
	Parent         Parent                     `json:"parent"`
	Properties     map[string]json.RawMessage `json:"properties"`
}

// IsZero reports whether p is the empty result returned after a failed call.
func (p Page) IsZero() bool {
	return p.ID == ""
}

// Property returns the decoded value of the named property. ok is false when the
// page has no such property.
func (p Page) Property(name string) (value codec.Value, ok bool, err error) {
	raw, ok := p.Properties[name]
	if !ok {
		return nil, false, nil
	}
	value, err = codec.Decode(raw)
	return value, true, err
}

// PropertyItem is the result of retrieving a single page property. Paginated
// properties (relation, rich_text, people, ...) carry their items in Results.
type PropertyItem struct {
	Object     string            `json:"object"`
	ID         string            `json:"id,omitempty"`
	Type       string            `json:"type,omitempty"`
	Results    []json.RawMessage `json:"results,omitempty"`
	HasMore    bool              `json:"has_more,omitempty"`
	NextCursor string            `json:"next_cursor,omitempty"`

	// Raw is the full response body.
	Raw json.RawMessage `json:"-"`
}

// IsZero reports whether i is the empty result returned after a failed call.
func (i PropertyItem) IsZero() bool {
	return len(i.Raw) == 0
}

// QueryOptions narrows a database query.
type QueryOptions struct {
	// FilterProperties limits the returned properties to these ids or names.
	FilterProperties []string

	// Filter is passed through as the request's "filter" object.
	Filter map[string]any

	// PageLimit, when positive, returns a single page of at most that many records,
	// capped at DefaultPageSize.
	PageLimit int
}

// NewPage builds a page of the database from encoded property fragments.
func NewPage(id, databaseID string, properties codec.Properties) (Page, error) {
	page := Page{
		Object:     "page",
		ID:         id,
		Parent:     Parent{Type: "database_id", DatabaseID: databaseID},
		Properties: make(map[string]json.RawMessage, len(properties)),
	}
	for name, fragment := range properties {
		raw, err := json.Marshal(fragment)
		if err != nil {
			return Page{}, errors.Wrapf(err, "encode property %q", name)
		}
		page.Properties[name] = raw
	}
	return page, nil
}
