// Package airtable implements the destination-side client for the Airtable
// REST API: the metadata API for bases, tables and fields, and the records API.
package airtable

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/url"
	"strconv"

	"github.com/nucleus/meno-sync/internal/connector/http"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Client talks to one Airtable account.
type Client struct {
	*http.Base
	config *Config
	logger log.FieldLogger
}

// New creates a new Airtable client with the given configuration.
func New(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	httpConfig := config.HTTP
	if httpConfig == nil {
		httpConfig = http.DefaultClientConfig()
	}
	if httpConfig.Headers == nil {
		httpConfig.Headers = make(map[string]string)
	}
	httpConfig.BaseURL = config.BaseURL
	httpConfig.Auth = http.BearerToken{Token: config.Token}
	httpConfig.Headers["Accept"] = "application/json"
	httpConfig.RateLimit = config.RateLimit
	if httpConfig.Logger == nil {
		httpConfig.Logger = config.Logger
	}

	return &Client{
		Base:   http.NewBase("airtable", "Airtable", "Airtable", httpConfig),
		config: config,
		logger: config.Logger.WithField("connector", "airtable"),
	}, nil
}

// =============================================================================
// METADATA
// =============================================================================

// ValidateConnection checks the token against the whoami endpoint.
func (c *Client) ValidateConnection(ctx context.Context) (*http.ValidationResult, error) {
	return c.Probe(ctx, "/v0/meta/whoami")
}

// ListBases returns every base the token can access.
func (c *Client) ListBases(ctx context.Context) ([]Base, error) {
	items, err := c.Client.Collect(ctx, http.NewOffsetPaginator("/v0/meta/bases", nil), "bases", 0)
	if err != nil {
		return nil, errors.Wrap(err, "list bases")
	}
	bases := make([]Base, 0, len(items))
	for _, item := range items {
		var b Base
		if err := json.Unmarshal(item, &b); err != nil {
			return nil, errors.Wrap(err, "decode base")
		}
		bases = append(bases, b)
	}
	return bases, nil
}

// ListTables returns the schema of every table in the base.
func (c *Client) ListTables(ctx context.Context, baseID string) ([]Table, error) {
	var resp struct {
		Tables []Table `json:"tables"`
	}
	if err := c.FetchJSON(ctx, tablesPath(baseID), &resp); err != nil {
		return nil, errors.Wrapf(err, "list tables of base %s", baseID)
	}
	return resp.Tables, nil
}

// CreateTable creates a table with the given initial fields. The first field
// becomes the primary field.
func (c *Client) CreateTable(ctx context.Context, baseID, name string, fields []Field) (Table, error) {
	resp, err := c.Client.Post(ctx, tablesPath(baseID), nil, map[string]any{
		"name":   name,
		"fields": fields,
	})
	if err != nil {
		return Table{}, errors.Wrapf(err, "create table %q", name)
	}

	var table Table
	if err := resp.JSON(&table); err != nil {
		return Table{}, errors.Wrap(err, "decode table")
	}
	c.logger.WithFields(log.Fields{"base": baseID, "table": name}).Info("Created table")
	return table, nil
}

// CreateField adds a field to an existing table.
func (c *Client) CreateField(ctx context.Context, baseID, tableID string, field Field) (Field, error) {
	path := tablesPath(baseID) + "/" + url.PathEscape(tableID) + "/fields"
	resp, err := c.Client.Post(ctx, path, nil, field)
	if err != nil {
		return Field{}, errors.Wrapf(err, "create field %q", field.Name)
	}

	var created Field
	if err := resp.JSON(&created); err != nil {
		return Field{}, errors.Wrap(err, "decode field")
	}
	return created, nil
}

// =============================================================================
// RECORDS
// =============================================================================

// ListRecords returns every record of the table. When fields is non-empty only
// those fields are returned.
func (c *Client) ListRecords(ctx context.Context, baseID, table string, fields ...string) ([]Record, error) {
	query := url.Values{"pageSize": {strconv.Itoa(PageSize)}}
	for _, f := range fields {
		query.Add("fields[]", f)
	}

	items, err := c.Client.Collect(ctx, http.NewOffsetPaginator(recordsPath(baseID, table), query), "records", 0)
	if err != nil {
		return nil, errors.Wrapf(err, "list records of %s", table)
	}
	records := make([]Record, 0, len(items))
	for _, item := range items {
		var r Record
		if err := json.Unmarshal(item, &r); err != nil {
			return nil, errors.Wrap(err, "decode record")
		}
		records = append(records, r)
	}
	return records, nil
}

// CreateRecords writes records in batches of BatchSize with typecast enabled and
// returns the created records in input order.
func (c *Client) CreateRecords(ctx context.Context, baseID, table string, fields []map[string]any) ([]Record, error) {
	created := make([]Record, 0, len(fields))
	for start := 0; start < len(fields); start += c.config.BatchSize {
		end := min(start+c.config.BatchSize, len(fields))

		batch := make([]map[string]any, 0, end-start)
		for _, f := range fields[start:end] {
			batch = append(batch, map[string]any{"fields": f})
		}
		records, err := c.writeBatch(ctx, nethttp.MethodPost, baseID, table, batch)
		if err != nil {
			return created, errors.Wrapf(err, "create records %d-%d", start, end-1)
		}
		created = append(created, records...)
	}
	return created, nil
}

// UpdateRecords patches records in batches of BatchSize with typecast enabled.
func (c *Client) UpdateRecords(ctx context.Context, baseID, table string, updates []RecordUpdate) ([]Record, error) {
	updated := make([]Record, 0, len(updates))
	for start := 0; start < len(updates); start += c.config.BatchSize {
		end := min(start+c.config.BatchSize, len(updates))

		records, err := c.writeBatch(ctx, nethttp.MethodPatch, baseID, table, updates[start:end])
		if err != nil {
			return updated, errors.Wrapf(err, "update records %d-%d", start, end-1)
		}
		updated = append(updated, records...)
	}
	return updated, nil
}

func (c *Client) writeBatch(ctx context.Context, method, baseID, table string, records any) ([]Record, error) {
	req, err := http.NewJSONRequest(method, recordsPath(baseID, table), map[string]any{
		"records":  records,
		"typecast": true,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.Client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var out struct {
		Records []Record `json:"records"`
	}
	if err := resp.JSON(&out); err != nil {
		return nil, errors.Wrap(err, "decode records")
	}
	return out.Records, nil
}

func tablesPath(baseID string) string {
	return "/v0/meta/bases/" + url.PathEscape(baseID) + "/tables"
}

func recordsPath(baseID, table string) string {
	return "/v0/" + url.PathEscape(baseID) + "/" + url.PathEscape(table)
}
