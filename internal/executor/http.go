package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to the executor over its JSON action endpoint.
//
// The executor owns all dialing semantics; this client only ships the
// action and reports the acknowledgement. Remote rejection strings come
// back untouched in ActionResponse.Error.
type HTTPClient struct {
	BaseURL string
	Token   string

	HTTP *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Do(ctx context.Context, req ActionRequest) (ActionResponse, error) {
	if c.BaseURL == "" {
		return ActionResponse{}, errors.New("executor: base url not configured")
	}
	if req.Action == "" {
		return ActionResponse{}, errors.New("executor: action is required")
	}
	if req.Action != ActionCreate && req.BatchID == "" {
		return ActionResponse{}, errors.New("executor: batch_id is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return ActionResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/batch-calls", bytes.NewReader(body))
	if err != nil {
		return ActionResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return ActionResponse{}, fmt.Errorf("executor request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ActionResponse{}, fmt.Errorf("executor response read failed: %w", err)
	}

	var out ActionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ActionResponse{}, fmt.Errorf("executor response decode failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		out.Success = false
		if out.Error == "" {
			out.Error = fmt.Sprintf("executor returned status %d", resp.StatusCode)
		}
		return out, nil
	}
	if out.Error == "" {
		out.Success = true
	}
	return out, nil
}

func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	if c.BaseURL == "" {
		return errors.New("executor: base url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("executor health check returned status %d", resp.StatusCode)
	}
	return nil
}
