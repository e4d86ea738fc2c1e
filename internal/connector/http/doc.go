// Package http provides the shared REST transport used by the Notion source
// connector and the Airtable destination connector.
//
// Structure:
//
//	base.go       - Base struct embedded by connectors
//	client.go     - HTTP client with pacing, rate limiting and retry
//	auth.go       - Authentication strategies (Bearer, API key)
//	paginator.go  - Pagination helpers (body cursor, query offset)
//	errors.go     - HTTP and retry errors
package http
