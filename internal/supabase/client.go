// Package supabase talks to a hosted Supabase project over PostgREST and
// adapts it to the round repository used by the session core.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal PostgREST client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// New creates a client. URL and APIKey are required.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase: URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase: APIKey is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// From starts a query against table.
func (c *Client) From(table string) *Query {
	return &Query{client: c, table: table, params: url.Values{}}
}

// Query builds one PostgREST request.
type Query struct {
	client *Client
	table  string
	params url.Values
}

// Select specifies columns to select.
func (q *Query) Select(columns string) *Query {
	q.params.Set("select", columns)
	return q
}

// Eq adds an equality filter.
func (q *Query) Eq(column string, value any) *Query {
	return q.Filter(column, "eq", value)
}

// Is adds an IS filter (null, true, false).
func (q *Query) Is(column string, value any) *Query {
	return q.Filter(column, "is", value)
}

// Filter adds column=op.value, e.g. Filter("total_score", "not.is", "null").
func (q *Query) Filter(column, op string, value any) *Query {
	q.params.Add(column, fmt.Sprintf("%s.%v", op, value))
	return q
}

// Or adds a disjunction of PostgREST conditions, e.g.
// Or("total_score.is.null,total_score.eq.40").
func (q *Query) Or(conditions string) *Query {
	q.params.Add("or", "("+conditions+")")
	return q
}

// Order adds an ORDER BY clause.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	if prev := q.params.Get("order"); prev != "" {
		q.params.Set("order", prev+","+column+"."+dir)
	} else {
		q.params.Set("order", column+"."+dir)
	}
	return q
}

// Limit sets the LIMIT.
func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

// Execute runs a SELECT.
func (q *Query) Execute(ctx context.Context) (*Response, error) {
	req, err := q.request(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	return q.client.do(req)
}

// Insert posts rows and returns the inserted representation.
func (q *Query) Insert(ctx context.Context, rows any) (*Response, error) {
	req, err := q.request(ctx, http.MethodPost, rows)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")
	return q.client.do(req)
}

// Upsert posts rows, merging on the onConflict columns.
func (q *Query) Upsert(ctx context.Context, rows any, onConflict string) (*Response, error) {
	if onConflict != "" {
		q.params.Set("on_conflict", onConflict)
	}
	req, err := q.request(ctx, http.MethodPost, rows)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")
	return q.client.do(req)
}

// Update patches the filtered rows.
func (q *Query) Update(ctx context.Context, patch any) (*Response, error) {
	req, err := q.request(ctx, http.MethodPatch, patch)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")
	return q.client.do(req)
}

// Delete removes the filtered rows.
func (q *Query) Delete(ctx context.Context) (*Response, error) {
	req, err := q.request(ctx, http.MethodDelete, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")
	return q.client.do(req)
}

func (q *Query) request(ctx context.Context, method string, body any) (*http.Request, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, q.table)
	if len(q.params) > 0 {
		reqURL += "?" + q.params.Encode()
	}

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q.client.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Response is a raw PostgREST response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// APIError is a PostgREST error body.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("supabase: status %d", e.Status)
}

// Err returns an *APIError when the response indicates failure.
func (r *Response) Err() error {
	if r.StatusCode < 400 {
		return nil
	}
	e := &APIError{Status: r.StatusCode}
	_ = json.Unmarshal(r.Body, e)
	return e
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body, Headers: resp.Header}, nil
}
