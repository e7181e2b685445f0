package api

import (
	"context"
	"net/http"
	"net/url"

	"majorpath.org/internal/credstore"
	"majorpath.org/internal/ids"
)

// Login exchanges credentials for a bearer token and the user record.
// Storing them is the session controller's job, not the client's.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, request{
		endpoint: "auth.login",
		method:   http.MethodPost,
		path:     "/auth/login",
		body:     map[string]string{"email": email, "password": password},
	}, &out)
	return out, err
}

// Logout invalidates the server-side session. Callers treat failures as
// best-effort; local state is cleared regardless.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, request{
		endpoint: "auth.logout",
		method:   http.MethodPost,
		path:     "/auth/logout",
	}, nil)
}

// Me fetches the currently authenticated user.
func (c *Client) Me(ctx context.Context) (*credstore.User, error) {
	var out credstore.User
	if err := c.do(ctx, request{
		endpoint: "auth.me",
		method:   http.MethodGet,
		path:     "/auth/me",
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ForgotPassword requests a password-reset email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, request{
		endpoint: "auth.forgot_password",
		method:   http.MethodPost,
		path:     "/auth/forgot-password",
		body:     map[string]string{"email": email},
	}, nil)
}

// ResetPassword sets a new password using an emailed reset token.
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	return c.do(ctx, request{
		endpoint: "auth.reset_password",
		method:   http.MethodPost,
		path:     "/auth/reset-password",
		body:     map[string]string{"token": token, "password": password},
	}, nil)
}

// AcceptInvitation activates an invited account.
func (c *Client) AcceptInvitation(ctx context.Context, inviteToken, fullName, password string) (LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, request{
		endpoint: "invitations.accept",
		method:   http.MethodPost,
		path:     "/invitations/accept/" + url.PathEscape(inviteToken),
		body:     map[string]string{"full_name": fullName, "password": password},
	}, &out)
	return out, err
}

// ProcessExam submits an exam code for processing. The idempotency key makes
// a refresh-driven retry safe on the backend.
func (c *Client) ProcessExam(ctx context.Context, examCode string) (Submission, error) {
	var out Submission
	err := c.do(ctx, request{
		endpoint:       "exam.process",
		method:         http.MethodPost,
		path:           "/exam-results/process",
		body:           map[string]string{"exam_code": examCode},
		idempotencyKey: ids.New(),
	}, &out)
	return out, err
}

// ExamStatus fetches one job status snapshot. lang selects the result
// language; empty means the backend default.
func (c *Client) ExamStatus(ctx context.Context, jobID, lang string) (JobStatus, error) {
	var query url.Values
	if lang != "" {
		query = url.Values{"lang": []string{lang}}
	}
	var out JobStatus
	err := c.do(ctx, request{
		endpoint: "exam.status",
		method:   http.MethodGet,
		path:     "/exam-results/status/" + url.PathEscape(jobID),
		query:    query,
	}, &out)
	return out, err
}

// CompanyProfile fetches the employer profile.
func (c *Client) CompanyProfile(ctx context.Context) (CompanyProfile, error) {
	var out CompanyProfile
	err := c.do(ctx, request{
		endpoint: "company.profile",
		method:   http.MethodGet,
		path:     "/company/profile",
	}, &out)
	return out, err
}

// UpdateCompanyProfile replaces the employer profile.
func (c *Client) UpdateCompanyProfile(ctx context.Context, p CompanyProfile) (CompanyProfile, error) {
	var out CompanyProfile
	err := c.do(ctx, request{
		endpoint: "company.profile_update",
		method:   http.MethodPut,
		path:     "/company/profile",
		body:     p,
	}, &out)
	return out, err
}
