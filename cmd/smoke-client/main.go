package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"majorpath.org/internal/api"
	"majorpath.org/internal/credstore"
	"majorpath.org/internal/exam"
	"majorpath.org/internal/session"
)

// Smoke run against a live backend: sign in, submit a known exam code, poll
// to a terminal state and check the transformed result.
func main() {
	baseURL := os.Getenv("MAJORPATH_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000/api/v1"
	}
	email := os.Getenv("MAJORPATH_SMOKE_EMAIL")
	password := os.Getenv("MAJORPATH_SMOKE_PASSWORD")
	code := os.Getenv("MAJORPATH_SMOKE_EXAM_CODE")
	if email == "" || password == "" || code == "" {
		log.Fatal("MAJORPATH_SMOKE_EMAIL, MAJORPATH_SMOKE_PASSWORD and MAJORPATH_SMOKE_EXAM_CODE are required")
	}

	creds := credstore.NewMemStore()
	client := api.New(baseURL, creds)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sess := session.New(client, creds)
	if err := sess.Login(ctx, email, password); err != nil {
		log.Fatalf("login: %v", err)
	}

	done := make(chan exam.Snapshot, 1)
	ctrl := exam.New(client, exam.WithObserver(func(s exam.Snapshot) {
		if s.State == exam.StateSuccess || s.State == exam.StateError {
			select {
			case done <- s:
			default:
			}
		}
	}))
	defer ctrl.Close()

	if err := ctrl.Submit(ctx, code); err != nil && ctrl.Snapshot().State != exam.StateError {
		log.Fatalf("submit: %v", err)
	}

	var snap exam.Snapshot
	select {
	case snap = <-done:
	case <-ctx.Done():
		log.Fatal("timed out waiting for a terminal job state")
	}
	if snap.State != exam.StateSuccess {
		log.Fatalf("job ended in error: %s", snap.Err)
	}
	if snap.Progress != 100 {
		log.Fatalf("terminal progress = %d, want 100", snap.Progress)
	}
	if snap.Result == nil || len(snap.Result.RecommendedJobs) == 0 {
		log.Fatal("terminal result carried no recommendations")
	}

	sess.Logout(ctx)
	fmt.Printf("✅ client smoke test passed: job=%s majors=%d\n", snap.JobID, len(snap.Result.RecommendedJobs))
}
