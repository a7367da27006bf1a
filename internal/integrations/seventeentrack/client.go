package seventeentrack

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/TrackSync/internal/models"
	"github.com/pkg/errors"
)

const (
	DefaultBaseURL = "https://api.17track.net/track/v2.4"

	EndpointGetTrackInfo = "gettrackinfo"
	EndpointRegister     = "register"
	EndpointDelete       = "delete"

	tokenHeader    = "17token"
	defaultTimeout = 10 * time.Second
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// WithTimeout overrides the per-request timeout (10s by default).
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpc.Timeout = d
	}
	return c
}

// AccountID is the short account identifier derived from an API key (its last 8 characters).
func AccountID(apiKey string) string {
	if len(apiKey) <= 8 {
		return apiKey
	}
	return apiKey[len(apiKey)-8:]
}

type requestItem struct {
	Number string  `json:"number"`
	Title  *string `json:"title,omitempty"`
}

// ValidateToken reports whether 17TRACK accepts the API key.
// Any API error that does not mention "invalid" counts as an accepted token;
// transport errors are returned as is.
func (c *Client) ValidateToken(ctx context.Context) (bool, error) {
	_, err := c.request(ctx, EndpointGetTrackInfo, nil)
	if err == nil {
		return true, nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !strings.Contains(strings.ToLower(apiErr.Message), "invalid"), nil
	}
	return false, err
}

// GetPackages fetches all registered packages in upstream order.
func (c *Client) GetPackages(ctx context.Context) ([]*models.Package, error) {
	payload, err := c.request(ctx, EndpointGetTrackInfo, nil)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Package, 0)
	for _, rec := range packageRecords(payload) {
		if _, ok := scalarText(rec["number"]); !ok {
			continue
		}
		out = append(out, Normalize(rec))
	}
	return out, nil
}

// AddPackage registers a tracking number on 17TRACK under an optional friendly title.
func (c *Client) AddPackage(ctx context.Context, trackingNumber, title string) error {
	_, err := c.request(ctx, EndpointRegister, []requestItem{{Number: trackingNumber, Title: &title}})
	return err
}

// ArchivePackage stops tracking the package on 17TRACK.
func (c *Client) ArchivePackage(ctx context.Context, trackingNumber string) error {
	_, err := c.request(ctx, EndpointDelete, []requestItem{{Number: trackingNumber}})
	return err
}

// packageRecords picks the record list out of a gettrackinfo payload:
// a bare array, then "accepted", then "items". Non-object elements are dropped.
func packageRecords(payload any) []map[string]any {
	var candidates []any
	switch p := payload.(type) {
	case []any:
		candidates = p
	case map[string]any:
		var picked any
		for _, key := range []string{"accepted", "items"} {
			if truthy(p[key]) {
				picked = p[key]
				break
			}
		}
		candidates, _ = picked.([]any)
	}

	out := make([]map[string]any, 0, len(candidates))
	for _, item := range candidates {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}

func (c *Client) request(ctx context.Context, endpoint string, body []requestItem) (any, error) {
	if body == nil {
		body = []requestItem{}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set(tokenHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: errors.Wrap(err, "read body")}
	}

	// Content-Type is not trusted: 17TRACK omits or mislabels it.
	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: errors.Wrap(err, "decode")}
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: extractErrorMessage(result, resp.StatusCode)}
	}

	obj, isObj := result.(map[string]any)
	if !isObj {
		return result, nil
	}
	if !successCode(obj["code"]) {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: extractErrorMessage(result, resp.StatusCode)}
	}
	if data, ok := obj["data"]; ok {
		return data, nil
	}
	return obj, nil
}

// successCode treats a missing or null code as success; 17TRACK does not always send one.
func successCode(v any) bool {
	if v == nil {
		return true
	}
	f, ok := v.(float64)
	return ok && (f == 0 || f == 200)
}
