package notion

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/nucleus/meno-sync/internal/codec"
	"github.com/nucleus/meno-sync/internal/connector/http"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// =============================================================================
// NOTION CLIENT
// =============================================================================

// Client reads and writes pages of Notion databases.
type Client struct {
	*http.Base
	config *Config
	logger log.FieldLogger
}

// New creates a new Notion client with the given configuration.
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
	httpConfig.Headers["Notion-Version"] = config.Version
	httpConfig.Headers["Accept"] = "application/json"
	if httpConfig.Logger == nil {
		httpConfig.Logger = config.Logger
	}

	return &Client{
		Base:   http.NewBase("notion", "Notion", "Notion Labs", httpConfig),
		config: config,
		logger: config.Logger.WithField("connector", "notion"),
	}, nil
}

// ValidateConnection checks the token against the current bot user.
func (c *Client) ValidateConnection(ctx context.Context) (*http.ValidationResult, error) {
	return c.Probe(ctx, "/v1/users/me")
}

// =============================================================================
// READ
// =============================================================================

// Query returns every page of the database, in backend order. Pages are fetched
// PageSize at a time with PageDelay between fetches. If a page cannot be fetched
// after all retries, the failure is logged and an empty result is returned.
func (c *Client) Query(ctx context.Context, databaseID string, opts QueryOptions) ([]Page, error) {
	body := map[string]any{}
	if opts.Filter != nil {
		body["filter"] = opts.Filter
	}

	pager := http.NewBodyCursorPaginator("/v1/databases/"+url.PathEscape(databaseID)+"/query", body)
	if len(opts.FilterProperties) > 0 {
		pager.Query = url.Values{"filter_properties": opts.FilterProperties}
	}
	if opts.PageLimit > 0 {
		body["page_size"] = min(opts.PageLimit, DefaultPageSize)
		pager.SinglePage = true
	} else {
		body["page_size"] = c.config.PageSize
	}

	logger := c.logger.WithField("database", databaseID)
	items, err := c.Client.Collect(ctx, pager, "results", c.config.PageDelay)
	if err != nil {
		if errors.Is(err, http.ErrRetriesExhausted) {
			logger.WithError(err).Error("Failed to query database, returning no records")
			return []Page{}, nil
		}
		return nil, errors.Wrapf(err, "query database %s", databaseID)
	}

	pages := make([]Page, 0, len(items))
	for _, item := range items {
		var p Page
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, errors.Wrap(err, "decode page")
		}
		pages = append(pages, p)
	}
	logger.WithField("records", len(pages)).Debug("Queried database")
	return pages, nil
}

// RetrievePage fetches a single page. The zero Page is returned when the call
// failed on every attempt.
func (c *Client) RetrievePage(ctx context.Context, pageID string) (Page, error) {
	if err := c.Client.Sleep(ctx, c.config.PageDelay); err != nil {
		return Page{}, err
	}
	resp, err := c.Client.Get(ctx, "/v1/pages/"+url.PathEscape(pageID), nil)
	return c.pageResult(resp, err, "retrieve page", pageID)
}

// RetrievePageProperty fetches one property of a page by property id. Relation
// items are capped at 25 by the backend.
func (c *Client) RetrievePageProperty(ctx context.Context, pageID, propertyID string) (PropertyItem, error) {
	if err := c.Client.Sleep(ctx, c.config.PageDelay); err != nil {
		return PropertyItem{}, err
	}
	path := "/v1/pages/" + url.PathEscape(pageID) + "/properties/" + url.PathEscape(propertyID)
	resp, err := c.Client.Get(ctx, path, nil)
	if err != nil {
		if errors.Is(err, http.ErrRetriesExhausted) {
			c.logger.WithError(err).WithFields(log.Fields{
				"page":     pageID,
				"property": propertyID,
			}).Error("Failed to retrieve page property")
			return PropertyItem{}, nil
		}
		return PropertyItem{}, errors.Wrapf(err, "retrieve property %s of page %s", propertyID, pageID)
	}

	var item PropertyItem
	if err := resp.JSON(&item); err != nil {
		return PropertyItem{}, errors.Wrap(err, "decode property item")
	}
	item.Raw = resp.Body
	return item, nil
}

// =============================================================================
// WRITE
// =============================================================================

// CreatePage creates a page in the database with the given encoded properties.
func (c *Client) CreatePage(ctx context.Context, databaseID string, properties codec.Properties) (Page, error) {
	body := map[string]any{
		"parent":     Parent{Type: "database_id", DatabaseID: databaseID},
		"properties": properties,
	}
	resp, err := c.Client.Post(ctx, "/v1/pages", nil, body)
	return c.pageResult(resp, err, "create page in", databaseID)
}

// UpdatePage patches the given properties of a page. trash moves the page to, or
// restores it from, the trash.
func (c *Client) UpdatePage(ctx context.Context, pageID string, properties codec.Properties, trash bool) (Page, error) {
	body := map[string]any{
		"properties": properties,
		"in_trash":   trash,
	}
	resp, err := c.Client.Patch(ctx, "/v1/pages/"+url.PathEscape(pageID), body)
	return c.pageResult(resp, err, "update page", pageID)
}

func (c *Client) pageResult(resp *http.Response, err error, op, id string) (Page, error) {
	if err != nil {
		if errors.Is(err, http.ErrRetriesExhausted) {
			c.logger.WithError(err).WithField("id", id).Errorf("Failed to %s", op)
			return Page{}, nil
		}
		return Page{}, errors.Wrapf(err, "%s %s", op, id)
	}

	var p Page
	if err := resp.JSON(&p); err != nil {
		return Page{}, errors.Wrap(err, "decode page")
	}
	return p, nil
}

// =============================================================================
// PROPERTY TRANSLATION
// =============================================================================

// DecodePropertyValue converts a raw property object into a plain value.
func DecodePropertyValue(raw json.RawMessage) (codec.Value, error) {
	return codec.Decode(raw)
}

// EncodeProperty builds the {name: fragment} map for a page create or update.
// value2 carries the companion array (links, file names, date end).
func EncodeProperty(name string, kind codec.Kind, value, value2 any, annotations []codec.Annotations) (codec.Properties, error) {
	return codec.Encode(name, kind, codec.Input{
		Value:       value,
		Value2:      value2,
		Annotations: annotations,
	})
}
