package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClient_DoCreateFlattensPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batch-calls" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("unexpected auth %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "batch_id": "b1", "first_run_started": true})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok", time.Second)
	resp, err := c.Do(context.Background(), ActionRequest{
		Action: ActionCreate,
		CreatePayload: &CreatePayload{
			Name:       "promo",
			CallerID:   "+14155550100",
			Recipients: []RecipientPayload{{Name: "John", PhoneNumber: "+14155551234", SortOrder: 1}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !resp.Success || !resp.FirstRunStarted {
		t.Fatalf("unexpected response %+v", resp)
	}

	// The create payload flattens into the action body.
	if got["action"] != "create" || got["name"] != "promo" {
		t.Fatalf("payload not flattened: %v", got)
	}
	if _, nested := got["CreatePayload"]; nested {
		t.Fatalf("expected embedded payload to flatten, got %v", got)
	}
}

func TestHTTPClient_DoRemoteRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"error": "unknown batch"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second)
	resp, err := c.Do(context.Background(), ActionRequest{Action: ActionStart, BatchID: "missing"})
	if err != nil {
		t.Fatalf("transport should not error on remote rejection: %v", err)
	}
	if resp.Success {
		t.Fatalf("expected failure")
	}
	if resp.Error != "unknown batch" {
		t.Fatalf("expected remote error carried verbatim, got %q", resp.Error)
	}
}

func TestHTTPClient_DoValidation(t *testing.T) {
	c := NewHTTPClient("", "", time.Second)
	if _, err := c.Do(context.Background(), ActionRequest{Action: ActionStart, BatchID: "b"}); err == nil {
		t.Fatalf("expected error without base url")
	}

	c = NewHTTPClient("http://localhost:0", "", time.Second)
	if _, err := c.Do(context.Background(), ActionRequest{Action: ActionStart}); err == nil {
		t.Fatalf("expected error without batch_id")
	}
}

func TestHTTPClient_InitiateCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/initiate-call" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req DialRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.PhoneNumber != "+14155551234" {
			t.Errorf("unexpected phone %q", req.PhoneNumber)
		}
		json.NewEncoder(w).Encode(DialResult{CallRecordID: "cr-1"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second)
	out, err := c.InitiateCall(context.Background(), DialRequest{
		BatchID:     "b1",
		RecipientID: "r1",
		PhoneNumber: "+14155551234",
		CallerID:    "+14155550100",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.CallRecordID != "cr-1" {
		t.Fatalf("expected call record id, got %+v", out)
	}
}

func TestHTTPClient_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}
