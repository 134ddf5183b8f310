package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loykin/svcmon/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedURL string
	var receivedMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedURL = r.URL.Path
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"test","_index":"sweeps","result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "sweeps")

	event := history.Event{
		Type:       history.EventSupervised,
		OccurredAt: time.Now().UTC(),
		Process:    "foo",
		Service:    "foo-svc",
		Outcome:    "recovered",
		PIDs:       []string{"12"},
	}
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if receivedMethod != http.MethodPost {
		t.Errorf("Expected POST method, got: %s", receivedMethod)
	}
	if receivedURL != "/sweeps/_doc" {
		t.Errorf("Expected URL path /sweeps/_doc, got: %s", receivedURL)
	}

	var doc map[string]any
	if err := json.Unmarshal(receivedBody, &doc); err != nil {
		t.Fatalf("Failed to parse received JSON: %v", err)
	}
	if doc["type"] != string(history.EventSupervised) {
		t.Errorf("Expected type %s, got: %v", history.EventSupervised, doc["type"])
	}
	if doc["process"] != "foo" || doc["outcome"] != "recovered" {
		t.Errorf("Unexpected document: %v", doc)
	}
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sink := New(server.URL, "sweeps")
	if err := sink.Send(context.Background(), history.Event{Type: history.EventSuppressed}); err == nil {
		t.Fatal("Expected error for 400 response")
	}
}

func TestOpenSearchSink_Unreachable(t *testing.T) {
	sink := New("http://127.0.0.1:1", "sweeps")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sink.Send(ctx, history.Event{Type: history.EventSuppressed}); err == nil {
		t.Fatal("Expected error for unreachable server")
	}
}
