package airtable

import (
	"github.com/nucleus/meno-sync/internal/connector/http"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config holds Airtable connection configuration.
type Config struct {
	// Token is the personal access token.
	Token string `json:"token"`

	// BaseURL defaults to https://api.airtable.com.
	BaseURL string `json:"baseUrl,omitempty"`

	// RateLimit is the request rate per second (default 5, the per-base limit).
	// A negative value disables client-side limiting.
	RateLimit float64 `json:"rateLimit,omitempty"`

	// BatchSize is the number of records per create/update call (max 10).
	BatchSize int `json:"batchSize,omitempty"`

	// HTTP overrides the transport settings (retries, sleep, round tripper).
	HTTP *http.ClientConfig `json:"-"`

	Logger log.FieldLogger `json:"-"`
}

const (
	// DefaultBaseURL is the public API host.
	DefaultBaseURL = "https://api.airtable.com"
	// DefaultRateLimit is the documented per-base request rate.
	DefaultRateLimit = 5
	// MaxBatchSize is the API limit for records per write request.
	MaxBatchSize = 10
	// PageSize is the API maximum for list requests.
	PageSize = 100
)

// ErrMissingToken is returned by Validate when no token is configured.
var ErrMissingToken = errors.New("airtable token is required")

// Validate fills defaults and checks required fields.
func (c *Config) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BatchSize <= 0 || c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.Logger == nil {
		c.Logger = log.StandardLogger()
	}
	return nil
}

// =============================================================================
// FIELD TYPES
// =============================================================================

// Destination field types used by the synchronizer.
const (
	FieldSingleLineText      = "singleLineText"
	FieldMultilineText       = "multilineText"
	FieldCheckbox            = "checkbox"
	FieldEmail               = "email"
	FieldNumber              = "number"
	FieldPhoneNumber         = "phoneNumber"
	FieldURL                 = "url"
	FieldSingleSelect        = "singleSelect"
	FieldMultipleSelects     = "multipleSelects"
	FieldDate                = "date"
	FieldMultipleRecordLinks = "multipleRecordLinks"
)

// =============================================================================
// API RESPONSE TYPES
// =============================================================================

// Base is a destination base.
type Base struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PermissionLevel string `json:"permissionLevel,omitempty"`
}

// Field is a table column definition.
type Field struct {
	ID      string         `json:"id,omitempty"`
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Options map[string]any `json:"options,omitempty"`
}

// Table is a destination table and its schema.
type Table struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	PrimaryFieldID string  `json:"primaryFieldId,omitempty"`
	Fields         []Field `json:"fields"`
}

// Field returns the field with the given name.
func (t *Table) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the names of all fields in schema order.
func (t *Table) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Record is a destination row.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// RecordUpdate patches the given fields of an existing record.
type RecordUpdate struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}
