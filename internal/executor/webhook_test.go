package executor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type captureUpdater struct {
	got []StatusCallback
	err error
}

func (u *captureUpdater) ApplyRecipientOutcome(ctx context.Context, cb StatusCallback) error {
	u.got = append(u.got, cb)
	return u.err
}

func postCallback(h WebhookHandler, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/executor/status", h.HandleStatusCallback)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/executor/status", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_AppliesCallback(t *testing.T) {
	u := &captureUpdater{}
	h := WebhookHandler{Updater: u}

	w := postCallback(h, `{"batch_id":"b1","recipient_id":"r1","status":"completed","call_record_id":"cr-1","occurred_at":"2024-05-01T12:00:00Z"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(u.got) != 1 {
		t.Fatalf("expected 1 callback, got %d", len(u.got))
	}
	cb := u.got[0]
	if cb.BatchID != "b1" || cb.RecipientID != "r1" || cb.Status != "completed" || cb.CallRecordID != "cr-1" {
		t.Fatalf("unexpected callback %+v", cb)
	}
}

func TestWebhook_DefaultsOccurredAt(t *testing.T) {
	u := &captureUpdater{}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := WebhookHandler{Updater: u, Now: func() time.Time { return fixed }}

	w := postCallback(h, `{"batch_id":"b1","recipient_id":"r1","status":"failed"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !u.got[0].OccurredAt.Equal(fixed) {
		t.Fatalf("expected defaulted occurred_at, got %v", u.got[0].OccurredAt)
	}
}

func TestWebhook_RejectsUnknownStatus(t *testing.T) {
	u := &captureUpdater{err: fmt.Errorf("%w: %q", ErrUnknownStatus, "exploded")}
	h := WebhookHandler{Updater: u}

	w := postCallback(h, `{"batch_id":"b1","recipient_id":"r1","status":"exploded","occurred_at":"2024-05-01T12:00:00Z"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWebhook_RejectsIncompleteCallback(t *testing.T) {
	u := &captureUpdater{}
	h := WebhookHandler{Updater: u}

	for _, body := range []string{
		`{"recipient_id":"r1","status":"completed"}`,
		`{"batch_id":"b1","status":"completed"}`,
		`{"batch_id":"b1","recipient_id":"r1"}`,
		`not json`,
	} {
		w := postCallback(h, body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", body, w.Code)
		}
	}
	if len(u.got) != 0 {
		t.Fatalf("expected no applied callbacks, got %d", len(u.got))
	}
}
