package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultTimeout = 10 * time.Second

var ErrNotFound = errors.New("resource not found")

// StatusError reports a response whose status the caller did not expect.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

type HttpClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Headers    map[string]string
}

func NewHttpClient(baseURL string, timeout time.Duration) *HttpClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HttpClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		Headers: map[string]string{},
	}
}

// WithBearer returns a copy of the client that authenticates every request
// with the given token.
func (c *HttpClient) WithBearer(token string) *HttpClient {
	headers := make(map[string]string, len(c.Headers)+1)
	for k, v := range c.Headers {
		headers[k] = v
	}
	headers["Authorization"] = "Bearer " + token
	return &HttpClient{BaseURL: c.BaseURL, HTTPClient: c.HTTPClient, Headers: headers}
}

type Response struct {
	*http.Response
	Body []byte
}

func (r *Response) DecodeJSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

// DecodeData decodes the payload of a {"data": ...} envelope into target.
func (r *Response) DecodeData(target any) error {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(r.Body, &wrapper); err != nil {
		return fmt.Errorf("could not decode response envelope: %w", err)
	}
	if len(wrapper.Data) == 0 {
		return fmt.Errorf("response envelope has no data: %s", r.ToString())
	}
	return json.Unmarshal(wrapper.Data, target)
}

func (r *Response) ToString() string {
	if r == nil || r.Response == nil {
		return "<nil response>"
	}
	return fmt.Sprintf("status=%d body=%s", r.StatusCode, string(r.Body))
}

func (c *HttpClient) GET(ctx context.Context, path string) (*Response, error) {
	return c.request(ctx, http.MethodGet, path, nil)
}

func (c *HttpClient) POST(ctx context.Context, path string, body any) (*Response, error) {
	return c.request(ctx, http.MethodPost, path, body)
}

func (c *HttpClient) PATCH(ctx context.Context, path string, body any) (*Response, error) {
	return c.request(ctx, http.MethodPatch, path, body)
}

func (c *HttpClient) DELETE(ctx context.Context, path string) (*Response, error) {
	return c.request(ctx, http.MethodDelete, path, nil)
}

func (c *HttpClient) POSTRaw(ctx context.Context, path string, rawBody []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, bytes.NewBuffer(rawBody), true)
}

func (c *HttpClient) request(ctx context.Context, method, path string, body any) (*Response, error) {
	var reqBody io.Reader

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	return c.do(ctx, method, path, reqBody, body != nil)
}

func (c *HttpClient) do(ctx context.Context, method, path string, reqBody io.Reader, hasBody bool) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	for key, value := range c.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		Response: resp,
		Body:     respBody,
	}, nil
}

// expectOK maps a 404 to ErrNotFound and every other non-2xx status to a
// StatusError.
func expectOK(resp *Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{StatusCode: resp.StatusCode, Message: GetErrorMessage(resp)}
	}
	return nil
}

func GetErrorMessage(resp *Response) string {
	var errResp struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := resp.DecodeJSON(&errResp); err != nil {
		return strings.TrimSpace(string(resp.Body))
	}

	switch {
	case errResp.Message != "":
		return errResp.Message
	case errResp.Detail != "":
		return errResp.Detail
	case errResp.Error != "":
		return errResp.Error
	}
	return errResp.Code
}
