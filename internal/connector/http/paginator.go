package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// =============================================================================
// PAGINATION STRATEGIES
// =============================================================================

// Paginator handles API pagination.
type Paginator interface {
	// FirstPage returns the request for the first page.
	FirstPage() (*Request, error)

	// NextPage returns the request for the next page, or nil if done.
	NextPage(ctx context.Context, resp *Response) (*Request, error)
}

// =============================================================================
// BODY CURSOR PAGINATION
// =============================================================================

// BodyCursorPaginator pages POST endpoints that take the cursor inside the JSON
// body and report {has_more, next_cursor} (Notion database queries).
type BodyCursorPaginator struct {
	Path          string
	Query         url.Values
	Body          map[string]any
	CursorKey     string // Body key for the cursor (default: "start_cursor")
	HasMoreKey    string // Response key (default: "has_more")
	NextCursorKey string // Response key (default: "next_cursor")

	// SinglePage stops after the first page regardless of has_more.
	SinglePage bool

	cursor string
}

// NewBodyCursorPaginator creates a body-cursor paginator for path.
func NewBodyCursorPaginator(path string, body map[string]any) *BodyCursorPaginator {
	if body == nil {
		body = map[string]any{}
	}
	return &BodyCursorPaginator{
		Path:          path,
		Body:          body,
		CursorKey:     "start_cursor",
		HasMoreKey:    "has_more",
		NextCursorKey: "next_cursor",
	}
}

// FirstPage returns the request for the current cursor position.
func (p *BodyCursorPaginator) FirstPage() (*Request, error) {
	body := make(map[string]any, len(p.Body)+1)
	for k, v := range p.Body {
		body[k] = v
	}
	if p.cursor != "" {
		body[p.CursorKey] = p.cursor
	}
	req, err := NewJSONRequest(http.MethodPost, p.Path, body)
	if err != nil {
		return nil, err
	}
	req.Query = p.Query
	return req, nil
}

// NextPage returns the next page request based on response.
func (p *BodyCursorPaginator) NextPage(ctx context.Context, resp *Response) (*Request, error) {
	if p.SinglePage {
		return nil, nil
	}

	var data map[string]any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, errors.Wrap(err, "decode page")
	}

	hasMore, _ := data[p.HasMoreKey].(bool)
	if !hasMore {
		return nil, nil
	}
	cursor, _ := data[p.NextCursorKey].(string)
	if cursor == "" {
		return nil, nil
	}
	p.cursor = cursor
	return p.FirstPage()
}

// =============================================================================
// QUERY OFFSET PAGINATION
// =============================================================================

// OffsetPaginator pages GET endpoints that return an opaque "offset" token to be
// echoed back as a query parameter (Airtable list records / list bases).
type OffsetPaginator struct {
	Path      string
	Query     url.Values
	OffsetKey string // Query param and response key (default: "offset")

	offset string
}

// NewOffsetPaginator creates a new offset-token paginator.
func NewOffsetPaginator(path string, query url.Values) *OffsetPaginator {
	return &OffsetPaginator{
		Path:      path,
		Query:     query,
		OffsetKey: "offset",
	}
}

// FirstPage returns the request for the current offset position.
func (p *OffsetPaginator) FirstPage() (*Request, error) {
	query := url.Values{}
	for k, v := range p.Query {
		query[k] = append([]string(nil), v...)
	}
	if p.offset != "" {
		query.Set(p.OffsetKey, p.offset)
	}
	return &Request{
		Method: http.MethodGet,
		Path:   p.Path,
		Query:  query,
	}, nil
}

// NextPage returns the next page request based on response.
func (p *OffsetPaginator) NextPage(ctx context.Context, resp *Response) (*Request, error) {
	var data map[string]any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, errors.Wrap(err, "decode page")
	}
	offset, _ := data[p.OffsetKey].(string)
	if offset == "" {
		return nil, nil
	}
	p.offset = offset
	return p.FirstPage()
}

// =============================================================================
// COLLECTION
// =============================================================================

// Collect follows the paginator until it reports no further page and returns the
// raw elements of resultsKey from every page, in order. between is waited before
// each page after the first.
func (c *Client) Collect(ctx context.Context, pager Paginator, resultsKey string, between time.Duration) ([]json.RawMessage, error) {
	var all []json.RawMessage

	req, err := pager.FirstPage()
	if err != nil {
		return nil, err
	}
	for page := 0; req != nil; page++ {
		if page > 0 {
			if err := c.Sleep(ctx, between); err != nil {
				return nil, err
			}
		}

		resp, err := c.Do(ctx, req)
		if err != nil {
			return nil, err
		}

		var data map[string]json.RawMessage
		if err := resp.JSON(&data); err != nil {
			return nil, errors.Wrap(err, "decode page")
		}
		if raw, ok := data[resultsKey]; ok {
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, errors.Wrapf(err, "decode %s", resultsKey)
			}
			all = append(all, items...)
		}

		req, err = pager.NextPage(ctx, resp)
		if err != nil {
			return nil, err
		}
	}

	return all, nil
}
