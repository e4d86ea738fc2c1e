package http

import (
	"context"
	"fmt"
)

// =============================================================================
// BASE HTTP CONNECTOR
// Provides common HTTP functionality for the source and destination connectors.
// =============================================================================

// Base provides common connector functionality.
// Embed this in connectors like Notion and Airtable.
type Base struct {
	// Client is the HTTP client for making requests.
	Client *Client

	// ConnectorID is the unique identifier for this connector.
	ConnectorID string

	// ConnectorName is the display name.
	ConnectorName string

	// Vendor is the vendor name (e.g., "Notion Labs", "Airtable").
	Vendor string
}

// NewBase creates a new HTTP base with the given configuration.
func NewBase(id, name, vendor string, config *ClientConfig) *Base {
	return &Base{
		Client:        NewClient(config),
		ConnectorID:   id,
		ConnectorName: name,
		Vendor:        vendor,
	}
}

// ID returns the connector identifier.
func (b *Base) ID() string {
	return b.ConnectorID
}

// Close closes the HTTP client.
func (b *Base) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// ValidationResult is the outcome of a connection probe.
type ValidationResult struct {
	Valid   bool
	Message string
}

// Probe tests the connection by making a GET request to probePath.
func (b *Base) Probe(ctx context.Context, probePath string) (*ValidationResult, error) {
	resp, err := b.Client.Get(ctx, probePath, nil)
	if err != nil {
		if code := StatusCode(err); code != 0 {
			return &ValidationResult{
				Valid:   false,
				Message: fmt.Sprintf("%s connection failed: HTTP %d", b.ConnectorName, code),
			}, nil
		}
		return nil, err
	}

	return &ValidationResult{
		Valid:   resp.IsSuccess(),
		Message: b.ConnectorName + " connection successful",
	}, nil
}

// FetchJSON fetches a JSON response and unmarshals it.
func (b *Base) FetchJSON(ctx context.Context, path string, target any) error {
	resp, err := b.Client.Get(ctx, path, nil)
	if err != nil {
		return err
	}
	return resp.JSON(target)
}
