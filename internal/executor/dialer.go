package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Dialer places one outbound call for a batch recipient. The dispatcher
// drives this; recipient outcomes come back later via StatusCallback.
type Dialer interface {
	InitiateCall(ctx context.Context, req DialRequest) (DialResult, error)
}

type DialRequest struct {
	BatchID     string `json:"batch_id"`
	RecipientID string `json:"batch_recipient_id"`
	UserID      string `json:"user_id"`

	PhoneNumber string `json:"phone_number"`
	CallerID    string `json:"caller_id"`
	AgentID     string `json:"agent_id,omitempty"`
}

type DialResult struct {
	CallRecordID string `json:"call_record_id"`
	Error        string `json:"error,omitempty"`
}

func (c *HTTPClient) InitiateCall(ctx context.Context, req DialRequest) (DialResult, error) {
	if c.BaseURL == "" {
		return DialResult{}, errors.New("executor: base url not configured")
	}
	if req.BatchID == "" || req.RecipientID == "" || req.PhoneNumber == "" {
		return DialResult{}, errors.New("executor: batch_id, recipient_id, phone_number required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return DialResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/initiate-call", bytes.NewReader(body))
	if err != nil {
		return DialResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return DialResult{}, fmt.Errorf("dial request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return DialResult{}, fmt.Errorf("dial response read failed: %w", err)
	}

	var out DialResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return DialResult{}, fmt.Errorf("dial response decode failed: %w", err)
	}
	if resp.StatusCode >= 400 && out.Error == "" {
		out.Error = fmt.Sprintf("executor returned status %d", resp.StatusCode)
	}
	return out, nil
}
