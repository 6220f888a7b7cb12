package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/nebulosa/api/pkg/apperr"
)

func TestIsTransportError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "connection refused",
			err:  &url.Error{Op: "Post", URL: "http://localhost:1/api/process", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}},
			want: true,
		},
		{
			name: "dns failure",
			err:  &url.Error{Op: "Post", URL: "http://nowhere.invalid/api/process", Err: &net.DNSError{Name: "nowhere.invalid", IsNotFound: true}},
			want: true,
		},
		{
			name: "redirect loop is not transport",
			err:  &url.Error{Op: "Post", URL: "http://localhost/api/process", Err: errors.New("stopped after 10 redirects")},
			want: false,
		},
		{
			name: "context cancellation is not transport",
			err:  &url.Error{Op: "Post", URL: "http://localhost/api/process", Err: context.Canceled},
			want: false,
		},
		{
			name: "deadline is not transport",
			err:  &url.Error{Op: "Post", URL: "http://localhost/api/process", Err: context.DeadlineExceeded},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransportError(tc.err); got != tc.want {
				t.Errorf("isTransportError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsCancellation(t *testing.T) {
	wrapped := &url.Error{Op: "Post", URL: "http://localhost/api/process", Err: context.Canceled}
	if !isCancellation(wrapped) {
		t.Error("Expected wrapped context.Canceled recognized as cancellation")
	}
	if isCancellation(&url.Error{Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}) {
		t.Error("Connection refused is not a cancellation")
	}
}

func TestSubmitRetriesNonTransportRequestErrors(t *testing.T) {
	// A redirect loop makes http.Client.Do fail without the host being
	// unreachable; such failures stay in the retryable class.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/process", http.StatusTemporaryRedirect)
	}))
	defer srv.Close()

	var retries int
	s := NewSubmitter(New(srv.URL))
	s.OnRetryWait = func(time.Duration) { retries++ }
	s.OnOffline = func() {
		t.Error("Request errors other than connection failures must not flip offline")
	}

	outcome := s.Submit(context.Background(), "doc.pdf", "application/pdf", []byte("%PDF-1.4"))

	if outcome.Accepted || outcome.Cancelled {
		t.Fatalf("Expected error outcome, got %+v", outcome)
	}
	if retries != 2 {
		t.Errorf("Expected 2 backoff waits, got %d", retries)
	}
	if outcome.Err != nil && outcome.Err.Code == apperr.CodeNetworkError {
		t.Errorf("Retryable request error misclassified as %s", outcome.Err.Code)
	}
}

func TestSubmitContextCancelledMidRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	s := NewSubmitter(New(srv.URL))
	s.OnOffline = func() {
		t.Error("Cancellation must not flip offline")
	}

	outcome := s.Submit(ctx, "doc.pdf", "application/pdf", []byte("%PDF-1.4"))

	if !outcome.Cancelled {
		t.Fatalf("Expected cancelled outcome, got %+v", outcome)
	}
}
