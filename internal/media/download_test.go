package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer meta-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	data, err := NewDownloader("meta-token", time.Second).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "%PDF-1.7" {
		t.Fatalf("unexpected body %q", data)
	}
}

func TestFetchNon2xxIsDownloadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewDownloader("t", time.Second).Fetch(context.Background(), srv.URL)

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError, got %T %v", err, err)
	}
	if dlErr.StatusCode != http.StatusNotFound || !dlErr.NotFound() {
		t.Fatalf("unexpected download error %+v", dlErr)
	}
	if dlErr.Timeout() {
		t.Fatalf("404 must not be reported as timeout")
	}
}

func TestFetchTimeoutIsDownloadError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewDownloader("t", 20*time.Millisecond).Fetch(context.Background(), srv.URL)

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) || !dlErr.Timeout() {
		t.Fatalf("expected timeout DownloadError, got %v", err)
	}
}
