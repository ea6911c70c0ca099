package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Connector sends a request to the API root it was built for.
type Connector interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// HTTPConnector sends requests over HTTP. BaseURL is the API root, e.g.
// "https://tuleap.example.com/api/v1".
type HTTPConnector struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewHTTPConnector(baseURL string, timeout time.Duration) *HTTPConnector {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPConnector{BaseURL: baseURL, Timeout: timeout}
}

func (c *HTTPConnector) Send(ctx context.Context, req Request) (Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := req.URL(c.BaseURL)
	var body io.Reader
	if b := req.Body(); b != nil {
		body = bytes.NewReader(b)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return Response{}, err
	}
	httpReq.Header = req.Header()
	httpReq.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", req.Method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: read body: %w", req.Method, url, err)
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}
