// Package transport talks to the Enduro collection and pipeline HTTP API.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/enduro-dash/enduro-dash/internal/collection"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 * 1024
)

// Client wraps interactions with the Enduro API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient constructs a client using the supplied http.Client.
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ListParams are the list endpoint filters. Empty strings and nil pointers
// are omitted from the request.
type ListParams struct {
	Name                string
	PipelineID          string
	TransferID          string
	AIPID               string
	OriginalID          string
	Status              *collection.Status
	EarliestCreatedTime *time.Time
	LatestCreatedTime   *time.Time
	Cursor              string
}

// Values encodes the parameters as a query string.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set(string(collection.FieldName), p.Name)
	set(string(collection.FieldPipelineID), p.PipelineID)
	set(string(collection.FieldTransferID), p.TransferID)
	set(string(collection.FieldAIPID), p.AIPID)
	set(string(collection.FieldOriginalID), p.OriginalID)
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.EarliestCreatedTime != nil {
		set("earliest_created_time", p.EarliestCreatedTime.UTC().Format(time.RFC3339))
	}
	if p.LatestCreatedTime != nil {
		set("latest_created_time", p.LatestCreatedTime.UTC().Format(time.RFC3339))
	}
	set("cursor", p.Cursor)
	return v
}

// ListResult is a page of the list endpoint. NextCursor is empty on the last
// page.
type ListResult struct {
	Items      []collection.RawCollection
	NextCursor string
}

type listResponseBody struct {
	Items      []collection.RawCollection `json:"items"`
	NextCursor *string                    `json:"next_cursor,omitempty"`
}

// SearchCollections lists collections matching params.
func (c *Client) SearchCollections(ctx context.Context, params ListParams) (ListResult, error) {
	var body listResponseBody
	if err := c.get(ctx, "/collection/", params.Values(), &body); err != nil {
		return ListResult{}, err
	}
	result := ListResult{Items: body.Items}
	if result.Items == nil {
		result.Items = []collection.RawCollection{}
	}
	if body.NextCursor != nil {
		result.NextCursor = *body.NextCursor
	}
	return result, nil
}

// FetchCollection shows a single collection.
func (c *Client) FetchCollection(ctx context.Context, id string) (collection.RawCollection, error) {
	var raw collection.RawCollection
	if err := c.get(ctx, "/collection/"+url.PathEscape(id), nil, &raw); err != nil {
		return collection.RawCollection{}, err
	}
	return raw, nil
}

// FetchPipeline shows a single pipeline.
func (c *Client) FetchPipeline(ctx context.Context, id string) (collection.Pipeline, error) {
	var p collection.Pipeline
	if err := c.get(ctx, "/pipeline/"+url.PathEscape(id), nil, &p); err != nil {
		return collection.Pipeline{}, err
	}
	return p, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dest any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return decodeRequestError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrTransport, path, err)
	}
	return nil
}

// errorBody matches the goa error and not_found payloads.
type errorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func decodeRequestError(resp *http.Response) error {
	reqErr := &RequestError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && len(data) > 0 {
		var body errorBody
		if json.Unmarshal(data, &body) == nil {
			reqErr.Name = body.Name
			reqErr.Message = body.Message
		} else {
			reqErr.Message = strings.TrimSpace(string(data))
		}
	}
	return reqErr
}
