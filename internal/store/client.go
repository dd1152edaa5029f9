// Package store is a REST client for the hosted tabular data store that
// backs all content. The store is the sole system of record; this process
// keeps no durable state of its own.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrNotFound is returned by Retrieve when the record does not exist.
var ErrNotFound = errors.New("record not found")

// Error is a non-success response from the store. The upstream status and
// body are kept verbatim for diagnostics.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote store: status %d: %s", e.Status, e.Body)
}

// Fields is the schemaless column set of a record.
type Fields map[string]any

type Record struct {
	ID          string `json:"id"`
	CreatedTime string `json:"createdTime,omitempty"`
	Fields      Fields `json:"fields"`
}

// RecordUpdate is a partial update applied to an existing record.
type RecordUpdate struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

type SortField struct {
	Field     string
	Direction string // "asc" or "desc"
}

type ListOptions struct {
	// Filter is a formula expression. Values interpolated into it must go
	// through String to stay inside their literals.
	Filter     string
	MaxRecords int
	Sort       []SortField
}

type Client struct {
	BaseURL    string
	BaseID     string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, baseID, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		BaseID:     baseID,
		APIKey:     apiKey,
		HTTPClient: &http.Client{},
	}
}

// String quotes v as a formula string literal, escaping backslashes and
// double quotes so caller-supplied values cannot break out of the literal.
func String(v string) string {
	escaped := strings.ReplaceAll(v, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// List returns the records of table matching opts, in store order.
func (c *Client) List(ctx context.Context, table string, opts ListOptions) ([]Record, error) {
	query := url.Values{}
	if opts.Filter != "" {
		query.Set("filterByFormula", opts.Filter)
	}
	if opts.MaxRecords > 0 {
		query.Set("maxRecords", strconv.Itoa(opts.MaxRecords))
	}
	for i, s := range opts.Sort {
		query.Set(fmt.Sprintf("sort[%d][field]", i), s.Field)
		query.Set(fmt.Sprintf("sort[%d][direction]", i), s.Direction)
	}

	var out struct {
		Records []Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, url.PathEscape(table), query, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Retrieve fetches a single record by id. A missing record is ErrNotFound,
// not a store Error.
func (c *Client) Retrieve(ctx context.Context, table, id string) (*Record, error) {
	var rec Record
	err := c.do(ctx, http.MethodGet, url.PathEscape(table)+"/"+url.PathEscape(id), nil, nil, &rec)
	if err != nil {
		var storeErr *Error
		if errors.As(err, &storeErr) && storeErr.Status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Create inserts one record per field set and returns them with their
// assigned ids.
func (c *Client) Create(ctx context.Context, table string, fields []Fields) ([]Record, error) {
	records := make([]Record, len(fields))
	for i, f := range fields {
		records[i] = Record{Fields: f}
	}
	payload := map[string]any{"records": records}

	var out struct {
		Records []Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodPost, url.PathEscape(table), nil, payload, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Update patches the given records and returns their updated state.
func (c *Client) Update(ctx context.Context, table string, updates []RecordUpdate) ([]Record, error) {
	payload := map[string]any{"records": updates}

	var out struct {
		Records []Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodPatch, url.PathEscape(table), nil, payload, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// do issues a single request. No retries: a failed call propagates
// immediately to the caller.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.BaseURL + "/" + url.PathEscape(c.BaseID) + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("store %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		return &Error{Status: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
