package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"majorpath.org/internal/api"
	"majorpath.org/internal/config"
	"majorpath.org/internal/credstore"
	"majorpath.org/internal/exam"
	"majorpath.org/internal/obs"
	"majorpath.org/internal/recommend"
	"majorpath.org/internal/session"
)

var version = "0.4.1"

func main() {
	_ = godotenv.Load()
	obs.Init()
	obs.InitBuildInfo(version, "")

	if len(os.Args) < 2 {
		usage()
	}

	cfg := config.Load()
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}
	creds := credstore.NewFileStore(cfg.CredentialDir)
	client := api.New(cfg.BaseURL, creds,
		api.WithTimeout(cfg.Timeout),
		api.WithSessionExpiredHandler(func() {
			fmt.Fprintln(os.Stderr, "session expired, run `majorpath login` to sign in again")
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	switch os.Args[1] {
	case "login":
		runLogin(ctx, client, creds)
	case "logout":
		runLogout(ctx, client, creds)
	case "whoami":
		runWhoami(ctx, client, creds)
	case "submit":
		runSubmit(ctx, client, cfg)
	case "status":
		runStatus(ctx, client, cfg)
	case "result":
		runResult(client, cfg)
	case "forgot-password":
		runForgotPassword(ctx, client)
	case "reset-password":
		runResetPassword(ctx, client)
	case "accept-invite":
		runAcceptInvite(ctx, client, creds)
	case "profile":
		runProfile(ctx, client)
	case "version":
		fmt.Println(version)
	default:
		usage()
	}
}

func runLogin(ctx context.Context, client *api.Client, creds credstore.Store) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", os.Getenv("MAJORPATH_EMAIL"), "account email")
	password := fs.String("password", os.Getenv("MAJORPATH_PASSWORD"), "account password")
	_ = fs.Parse(os.Args[2:])
	if *email == "" || *password == "" {
		fatalf("login requires -email and -password")
	}

	ctrl := session.New(client, creds)
	if err := ctrl.Login(ctx, *email, *password); err != nil {
		fatalf("login failed: %s", ctrl.State().Err)
	}
	st := ctrl.State()
	fmt.Printf("signed in as %s <%s>\n", st.User.FullName, st.User.Email)
}

func runLogout(ctx context.Context, client *api.Client, creds credstore.Store) {
	ctrl := session.New(client, creds)
	ctrl.Logout(ctx)
	fmt.Println("signed out")
}

func runWhoami(ctx context.Context, client *api.Client, creds credstore.Store) {
	ctrl := session.New(client, creds)
	ctrl.FetchUser(ctx)
	st := ctrl.State()
	if !st.Authenticated {
		fatalf("not signed in")
	}
	fmt.Printf("%s <%s>\n", st.User.FullName, st.User.Email)
	if token, ok := creds.Token(); ok {
		if exp, ok := credstore.TokenExpiry(token); ok {
			fmt.Printf("token expires %s\n", exp.UTC().Format(time.RFC3339))
		}
	}
}

func runSubmit(ctx context.Context, client *api.Client, cfg config.Config) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	lang := fs.String("lang", cfg.Language, "result language")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fatalf("usage: majorpath submit [-lang xx] <exam-code>")
	}
	code := fs.Arg(0)

	done := make(chan exam.Snapshot, 1)
	ctrl := exam.New(client,
		exam.WithInterval(cfg.PollInterval),
		exam.WithLanguage(*lang),
		exam.WithObserver(observer(done)),
	)
	defer ctrl.Close()

	if err := ctrl.Submit(ctx, code); errors.Is(err, exam.ErrInvalidExamCode) {
		fatalf("%v", err)
	}
	finish(<-done)
}

func runStatus(ctx context.Context, client *api.Client, cfg config.Config) {
	if len(os.Args) < 3 {
		fatalf("usage: majorpath status <job-id>")
	}
	st, err := client.ExamStatus(ctx, os.Args[2], cfg.Language)
	if err != nil {
		fatalf("status: %s", api.Message(err))
	}
	fmt.Printf("status=%s progress=%d%%", st.Status, st.Progress)
	if st.CurrentStep != "" {
		fmt.Printf(" step=%q", st.CurrentStep)
	}
	if st.ErrorMessage != "" {
		fmt.Printf(" error=%q", st.ErrorMessage)
	}
	fmt.Println()
}

func runResult(client *api.Client, cfg config.Config) {
	fs := flag.NewFlagSet("result", flag.ExitOnError)
	lang := fs.String("lang", "", "re-fetch the result in another language")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fatalf("usage: majorpath result [-lang xx] <job-id>")
	}
	jobID := fs.Arg(0)

	done := make(chan exam.Snapshot, 1)
	ctrl := exam.New(client,
		exam.WithInterval(cfg.PollInterval),
		exam.WithLanguage(cfg.Language),
		exam.WithObserver(observer(done)),
	)
	defer ctrl.Close()

	if err := ctrl.Attach(jobID); err != nil {
		fatalf("%v", err)
	}
	snap := <-done
	if *lang != "" && *lang != ctrl.Language() && snap.State == exam.StateSuccess {
		if err := ctrl.SetLanguage(*lang); err != nil {
			fatalf("%v", err)
		}
		snap = <-done
	}
	finish(snap)
}

func runForgotPassword(ctx context.Context, client *api.Client) {
	fs := flag.NewFlagSet("forgot-password", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	_ = fs.Parse(os.Args[2:])
	if *email == "" {
		fatalf("forgot-password requires -email")
	}
	if err := client.ForgotPassword(ctx, *email); err != nil {
		fatalf("forgot-password: %s", api.Message(err))
	}
	fmt.Println("reset email sent")
}

func runResetPassword(ctx context.Context, client *api.Client) {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	token := fs.String("token", "", "reset token from the email")
	password := fs.String("password", "", "new password")
	_ = fs.Parse(os.Args[2:])
	if *token == "" || *password == "" {
		fatalf("reset-password requires -token and -password")
	}
	if err := client.ResetPassword(ctx, *token, *password); err != nil {
		fatalf("reset-password: %s", api.Message(err))
	}
	fmt.Println("password updated")
}

func runAcceptInvite(ctx context.Context, client *api.Client, creds credstore.Store) {
	fs := flag.NewFlagSet("accept-invite", flag.ExitOnError)
	token := fs.String("token", "", "invitation token")
	name := fs.String("name", "", "full name")
	password := fs.String("password", "", "new password")
	_ = fs.Parse(os.Args[2:])
	if *token == "" || *password == "" {
		fatalf("accept-invite requires -token and -password")
	}
	res, err := client.AcceptInvitation(ctx, *token, *name, *password)
	if err != nil {
		fatalf("accept-invite: %s", api.Message(err))
	}
	creds.SetToken(res.Token)
	creds.SaveUser(res.User)
	fmt.Printf("welcome, %s\n", res.User.FullName)
}

func runProfile(ctx context.Context, client *api.Client) {
	if len(os.Args) >= 3 && os.Args[2] == "set" {
		fs := flag.NewFlagSet("profile set", flag.ExitOnError)
		name := fs.String("name", "", "company name")
		industry := fs.String("industry", "", "industry")
		website := fs.String("website", "", "website URL")
		description := fs.String("description", "", "description")
		_ = fs.Parse(os.Args[3:])
		p, err := client.UpdateCompanyProfile(ctx, api.CompanyProfile{
			Name:        *name,
			Industry:    *industry,
			Website:     *website,
			Description: *description,
		})
		if err != nil {
			fatalf("profile set: %s", api.Message(err))
		}
		printProfile(p)
		return
	}
	p, err := client.CompanyProfile(ctx)
	if err != nil {
		fatalf("profile: %s", api.Message(err))
	}
	printProfile(p)
}

func printProfile(p api.CompanyProfile) {
	fmt.Printf("%s (%s)\n", p.Name, p.Industry)
	if p.Website != "" {
		fmt.Println(p.Website)
	}
	if p.Description != "" {
		fmt.Println(p.Description)
	}
}

// observer forwards progress to stderr and delivers terminal snapshots.
func observer(done chan exam.Snapshot) func(exam.Snapshot) {
	return func(s exam.Snapshot) {
		switch s.State {
		case exam.StateLoading:
			if s.JobID != "" {
				fmt.Fprintf(os.Stderr, "job %s: %d%% %s\n", s.JobID, s.Progress, s.CurrentStep)
			}
		case exam.StateSuccess, exam.StateError:
			select {
			case done <- s:
			default:
			}
		}
	}
}

func finish(snap exam.Snapshot) {
	if snap.State == exam.StateError {
		fatalf("%s", snap.Err)
	}
	r := snap.Result
	fmt.Printf("recommendation for %s (code %s)\n\n", r.UserName, r.Code)
	fmt.Println(recommend.Render(r))
}

// serveMetrics exposes the Prometheus registry for long-running invocations
// (watch-style submits behind a supervisor).
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		obs.Warn("metrics listener failed", map[string]any{"addr": addr, "error": err.Error()})
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: %s <command> [flags]

commands:
  login            sign in (-email, -password)
  logout           sign out and clear local credentials
  whoami           show the signed-in user
  submit           submit an exam code and wait for the recommendation
  status           show one job status snapshot
  result           fetch a job's result (-lang to switch language)
  forgot-password  request a password reset email
  reset-password   set a new password with a reset token
  accept-invite    activate an invited account
  profile          show or update the company profile
  version          print the client version
`, os.Args[0])
	os.Exit(1)
}
