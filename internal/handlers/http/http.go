package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"delayflow/internal/domain"
)

// HTTP delivers a request described by the task data, typically a webhook.
type HTTP struct {
	Client *http.Client
}

type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
	Timeout int               `json:"timeout"` // seconds
}

func (h HTTP) Handle(ctx context.Context, t domain.Task) error {
	var req Request
	b, err := json.Marshal(t.Data)
	if err != nil {
		return errors.Wrap(err, "encode task data")
	}
	if err := json.Unmarshal(b, &req); err != nil {
		return errors.Wrap(err, "invalid HTTP request data")
	}

	if req.URL == "" {
		return errors.New("URL is required")
	}

	if req.Method == "" {
		req.Method = http.MethodPost
	}

	if req.Timeout <= 0 {
		req.Timeout = 30 // default 30 seconds
	}

	client := h.Client
	if client == nil {
		client = &http.Client{}
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(req.Timeout)*time.Second)
	defer cancel()

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return errors.Wrap(err, "failed to create HTTP request")
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	httpReq.Header.Set("X-Delayflow-Task", t.Name)

	resp, err := client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	// Check for HTTP errors (4xx, 5xx)
	if resp.StatusCode >= 400 {
		return errors.Newf("HTTP %d error: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
