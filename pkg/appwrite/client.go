package appwrite

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bfbechlin/appwrite-ctl/pkg/validator"
	"github.com/segmentio/encoding/json"
)

const (
	headerProject = "X-Appwrite-Project"
	headerKey     = "X-Appwrite-Key"
	userAgent     = "appwrite-ctl"
)

type Config struct {
	Endpoint   string        `validate:"required,url"`
	ProjectID  string        `validate:"required"`
	APIKey     string        `validate:"required"`
	Timeout    time.Duration `validate:"min=0"`
	HTTPClient *http.Client  `validate:"-"`
}

// Client is a minimal Appwrite REST client authenticated with a server API key.
type Client struct {
	endpoint   string
	projectID  string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if err := validator.Validate(cfg); err != nil {
		err = fmt.Errorf("appwrite client config: %w", err)
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &RoundTripper{Base: http.DefaultTransport},
		}
	}

	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		projectID:  cfg.ProjectID,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// Endpoint returns the API root, e.g. https://cloud.appwrite.io/v1.
func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) ProjectID() string {
	return c.projectID
}

// Call sends one request. body (when not nil) is sent as JSON and a successful
// response is decoded into out (when not nil). Non-2xx responses return *Error.
func (c *Client) Call(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body for %s %s: %w", method, path, err)
		}

		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("prepare request %s %s: %w", method, path, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(headerProject, c.projectID)
	req.Header.Set(headerKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response of %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &Error{}
		if _err := json.Unmarshal(respBody, apiErr); _err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}

		apiErr.Code = resp.StatusCode
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	if err = json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response of %s %s: %w", method, path, err)
	}

	return nil
}
