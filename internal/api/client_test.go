package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"majorpath.org/internal/credstore"
)

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *credstore.MemStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	creds := credstore.NewMemStore()
	opts = append([]Option{WithRateLimit(1000, 1000)}, opts...)
	return New(srv.URL, creds, opts...), creds
}

func TestRequestHeaders(t *testing.T) {
	t.Parallel()

	var gotAuth, gotRequestID, gotIdemKey, gotContentType string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /exam-results/process", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotIdemKey = r.Header.Get("Idempotency-Key")
		gotContentType = r.Header.Get("Content-Type")
		writeOK(w, map[string]any{"job_id": "job_1", "estimated_time_seconds": 30})
	})

	client, creds := newTestClient(t, mux)
	creds.SetToken("tok-1")

	sub, err := client.ProcessExam(context.Background(), "ABCDEFGH")
	if err != nil {
		t.Fatalf("ProcessExam: %v", err)
	}
	if sub.JobID != "job_1" || sub.EstimatedTimeSeconds != 30 {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatal("missing X-Request-ID")
	}
	if gotIdemKey == "" {
		t.Fatal("missing Idempotency-Key")
	}
	if gotContentType != "application/json" {
		t.Fatalf("Content-Type = %q", gotContentType)
	}
}

func TestRefreshRetriesOnce(t *testing.T) {
	t.Parallel()

	var refreshCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new" {
			writeErr(w, http.StatusUnauthorized, "token expired")
			return
		}
		writeOK(w, map[string]any{"id": "u1", "email": "a@b.c", "full_name": "Ada"})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		writeOK(w, map[string]any{"token": "new"})
	})

	client, creds := newTestClient(t, mux)
	creds.SetToken("old")

	u, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if u.Email != "a@b.c" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if n := atomic.LoadInt32(&refreshCalls); n != 1 {
		t.Fatalf("refresh calls = %d, want 1", n)
	}
	if tok, _ := creds.Token(); tok != "new" {
		t.Fatalf("stored token = %q, want new", tok)
	}
}

func TestConcurrent401sCollapseIntoOneRefresh(t *testing.T) {
	t.Parallel()

	const n = 8
	var refreshCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new" {
			writeErr(w, http.StatusUnauthorized, "token expired")
			return
		}
		writeOK(w, map[string]any{"id": "u1", "email": "a@b.c", "full_name": "Ada"})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		// Hold the refresh open long enough for every 401 to arrive.
		time.Sleep(300 * time.Millisecond)
		writeOK(w, map[string]any{"token": "new"})
	})

	client, creds := newTestClient(t, mux)
	creds.SetToken("old")

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Me(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&refreshCalls); n != 1 {
		t.Fatalf("refresh calls = %d, want 1", n)
	}
}

func TestRefreshFailureRejectsAllQueued(t *testing.T) {
	t.Parallel()

	const n = 4
	var refreshCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusUnauthorized, "token expired")
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		time.Sleep(300 * time.Millisecond)
		writeErr(w, http.StatusInternalServerError, "refresh backend down")
	})

	client, creds := newTestClient(t, mux)
	creds.SetToken("old")

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Me(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			t.Fatalf("request %d unexpectedly succeeded", i)
		}
	}
	if n := atomic.LoadInt32(&refreshCalls); n != 1 {
		t.Fatalf("refresh calls = %d, want 1", n)
	}
}

func TestRefreshUnauthorizedEndsSession(t *testing.T) {
	t.Parallel()

	expired := false
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusUnauthorized, "token expired")
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusUnauthorized, "refresh token revoked")
	})

	client, creds := newTestClient(t, mux, WithSessionExpiredHandler(func() { expired = true }))
	creds.SetToken("old")
	creds.SaveUser(&credstore.User{ID: "u1"})

	_, err := client.Me(context.Background())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if !expired {
		t.Fatal("session-expired handler was not invoked")
	}
	if _, ok := creds.Token(); ok {
		t.Fatal("token survived an unrecoverable session")
	}
	if _, ok := creds.StoredUser(); ok {
		t.Fatal("user record survived an unrecoverable session")
	}
}

func TestUnauthenticatedRequestDoesNotRefresh(t *testing.T) {
	t.Parallel()

	var refreshCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusUnauthorized, "wrong password")
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		writeOK(w, map[string]any{"token": "new"})
	})

	client, _ := newTestClient(t, mux)

	_, err := client.Login(context.Background(), "a@b.c", "nope")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if Message(err) != "wrong password" {
		t.Fatalf("message = %q, want server-provided", Message(err))
	}
	if n := atomic.LoadInt32(&refreshCalls); n != 0 {
		t.Fatalf("refresh calls = %d, want 0", n)
	}
}

func TestMapStatusError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		status  int
		message string
		want    error
		wantMsg string
	}{
		{name: "not found", status: 404, message: "exam not found", want: ErrNotFound, wantMsg: "exam not found"},
		{name: "unprocessable", status: 422, message: "code malformed", want: ErrInvalidInput, wantMsg: "code malformed"},
		{name: "bad request", status: 400, message: "", want: ErrInvalidInput, wantMsg: "Bad Request"},
		{name: "unauthorized", status: 401, message: "", want: ErrUnauthorized, wantMsg: "Unauthorized"},
		{name: "generic", status: 500, message: "boom", want: nil, wantMsg: "boom"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapStatusError(tc.status, tc.message)
			if tc.want != nil && !errors.Is(got, tc.want) {
				t.Fatalf("mapStatusError() = %v, want %v", got, tc.want)
			}
			if Message(got) != tc.wantMsg {
				t.Fatalf("message = %q, want %q", Message(got), tc.wantMsg)
			}
		})
	}
}

func TestUnsuccessfulEnvelopeIsAnError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /exam-results/status/job_1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "job expired"})
	})

	client, creds := newTestClient(t, mux)
	creds.SetToken("tok")

	_, err := client.ExamStatus(context.Background(), "job_1", "")
	if err == nil {
		t.Fatal("expected error for success=false envelope")
	}
	if Message(err) != "job expired" {
		t.Fatalf("message = %q, want %q", Message(err), "job expired")
	}
}

func TestTransportErrorNormalized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := New(srv.URL, credstore.NewMemStore(), WithRateLimit(1000, 1000))
	_, err := client.Me(context.Background())
	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatalf("err = %T, want *Error", err)
	}
	if ae.Status != 0 {
		t.Fatalf("status = %d, want 0 for transport error", ae.Status)
	}
	if ae.Message == "" {
		t.Fatal("transport error lost its message")
	}
}

func TestLanguageQueryParameter(t *testing.T) {
	t.Parallel()

	var gotLang string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /exam-results/status/job_9", func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.URL.Query().Get("lang")
		writeOK(w, map[string]any{"status": JobProcessing, "progress": 10})
	})

	client, creds := newTestClient(t, mux)
	creds.SetToken("tok")

	st, err := client.ExamStatus(context.Background(), "job_9", "vi")
	if err != nil {
		t.Fatalf("ExamStatus: %v", err)
	}
	if gotLang != "vi" {
		t.Fatalf("lang = %q, want vi", gotLang)
	}
	if st.Status != JobProcessing || st.Progress != 10 {
		t.Fatalf("unexpected status: %+v", st)
	}
}
