package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

func TestInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/invoke" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req pipeline.InvocationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(pipeline.InvocationResult{Data: pipeline.ResultData{Key: req.DestinationPrefix + "/photo_w800.jpg"}})
	}))
	defer srv.Close()

	result, err := New(srv.URL).Invoke(context.Background(), pipeline.InvocationRequest{
		ProcessingMode:    pipeline.ModeResize,
		SourceBucket:      "b",
		SourceKey:         "photo.jpg",
		DestinationPrefix: "out",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.Data.Key != "out/photo_w800.jpg" {
		t.Fatalf("unexpected key %q", result.Data.Key)
	}
}

func TestInvokeReturnsStageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(pipeline.ErrorResponse{Error: pipeline.ErrorBody{Stage: "FetchingSource", Message: "not found"}})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Invoke(context.Background(), pipeline.InvocationRequest{})
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if cerr.StatusCode != http.StatusBadGateway || cerr.Body.Stage != "FetchingSource" {
		t.Fatalf("unexpected error %+v", cerr)
	}
}

func TestConfigure(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	root := "/srv/ws"
	if err := New(srv.URL).Configure(context.Background(), pipeline.ConfigRequest{WorkspaceRoot: &root}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if got["workspace_root"] != root {
		t.Fatalf("unexpected body %v", got)
	}
}
