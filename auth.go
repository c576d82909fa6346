package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
)

// AuthState is the login state machine:
//
//	unauthenticated -> token-acquired -> attempting* -> authenticated | exhausted
type AuthState int

const (
	StateUnauthenticated AuthState = iota
	StateTokenAcquired
	StateAttempting
	StateAuthenticated
	StateExhausted
)

func (s AuthState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateTokenAcquired:
		return "token-acquired"
	case StateAttempting:
		return "attempting"
	case StateAuthenticated:
		return "authenticated"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// AttemptOutcome is how one login attempt ended.
type AttemptOutcome int

const (
	AttemptSolverFailed AttemptOutcome = iota
	AttemptRejected
	AttemptAuthenticated
)

func (o AttemptOutcome) String() string {
	switch o {
	case AttemptSolverFailed:
		return "solver-failed"
	case AttemptRejected:
		return "rejected"
	case AttemptAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// LoginAttempt records one pass through the attempt loop. Answer is 0 when
// the challenge could not be solved.
type LoginAttempt struct {
	Index   int
	Token   string
	Answer  int
	Outcome AttemptOutcome
	Err     error
}

// Credentials are what the login form posts. The password travels as its
// SM3 digest, never in plaintext.
type Credentials struct {
	Username       string
	PasswordDigest string
}

// Authenticator drives the login protocol against one Session.
type Authenticator struct {
	session *Session
	solver  *CaptchaSolver
	probe   *Probe
	site    SiteConfig
	jitter  Jitter
	logger  *slog.Logger

	state    AuthState
	attempts []LoginAttempt
}

func newAuthenticator(session *Session, solver *CaptchaSolver, probe *Probe, site SiteConfig, jitter Jitter, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		session: session,
		solver:  solver,
		probe:   probe,
		site:    site,
		jitter:  jitter,
		logger:  logger,
	}
}

// State returns where the state machine currently is.
func (a *Authenticator) State() AuthState { return a.state }

// Attempts returns the attempts made by the most recent Login call.
func (a *Authenticator) Attempts() []LoginAttempt { return a.attempts }

func (a *Authenticator) setState(s AuthState) {
	if a.state != s {
		a.logger.Debug("login state", "from", a.state, "to", s)
	}
	a.state = s
}

// Login authenticates the session. It returns true once the probe confirms
// the login, and false with a nil error when maxAttempts attempts all
// failed. Solver failures use up an attempt without posting credentials,
// so at most maxAttempts forms are submitted. Errors are returned for a
// missing token, transport failures and cancellation.
func (a *Authenticator) Login(ctx context.Context, creds Credentials, maxAttempts int) (bool, error) {
	a.attempts = nil

	ok, err := a.probe.IsAuthenticated(ctx)
	if err != nil {
		return false, fmt.Errorf("probe: %w", err)
	}
	if ok {
		a.setState(StateAuthenticated)
		a.logger.Info("already logged in")
		return true, nil
	}
	a.setState(StateUnauthenticated)

	page, err := a.session.Page(ctx, a.site.LoginPath, nil)
	if err == nil {
		err = page.expectOK()
	}
	if err != nil {
		return false, fmt.Errorf("load login page: %w", err)
	}
	token, err := extractToken(page.Body, a.site.TokenStart, a.site.TokenEnd)
	if err != nil {
		return false, err
	}
	a.setState(StateTokenAcquired)
	a.logger.Debug("extracted token", "token", token)

	for i := 1; i <= maxAttempts; i++ {
		a.setState(StateAttempting)
		attempt := LoginAttempt{Index: i, Token: token}
		a.logger.Info("login attempt", "attempt", i, "max", maxAttempts)

		if err := a.jitter.Sleep(ctx); err != nil {
			return false, err
		}

		answer, err := a.solveChallenge(ctx)
		if err != nil {
			if !isSolverFailure(err) {
				return false, err
			}
			attempt.Outcome, attempt.Err = AttemptSolverFailed, err
			a.attempts = append(a.attempts, attempt)
			a.logger.Warn("captcha not solved, retrying", "attempt", i, "error", err)
			continue
		}
		attempt.Answer = answer

		form := url.Values{
			"token":      {token},
			"j_username": {creds.Username},
			"j_password": {creds.PasswordDigest},
			"j_captcha":  {strconv.Itoa(answer)},
			"groupId":    {""},
		}
		if _, err := a.session.PostForm(ctx, a.site.SubmitPath, form); err != nil {
			return false, fmt.Errorf("submit login: %w", err)
		}

		ok, err := a.probe.IsAuthenticated(ctx)
		if err != nil {
			return false, fmt.Errorf("probe: %w", err)
		}
		if ok {
			attempt.Outcome = AttemptAuthenticated
			a.attempts = append(a.attempts, attempt)
			a.setState(StateAuthenticated)
			a.logger.Info("login successful", "attempt", i)
			return true, nil
		}

		attempt.Outcome = AttemptRejected
		a.attempts = append(a.attempts, attempt)
		a.logger.Warn("login rejected, retrying", "attempt", i, "answer", answer)
	}

	a.setState(StateExhausted)
	a.logger.Error("login failed after maximum attempts", "max", maxAttempts)
	return false, nil
}

// solveChallenge fetches a fresh CAPTCHA and solves it. A 2xx reply that
// is not an image fails to decode and counts as a solver failure.
func (a *Authenticator) solveChallenge(ctx context.Context) (int, error) {
	resp, err := a.session.Image(ctx, a.site.CaptchaPath)
	if err == nil {
		err = resp.expectOK()
	}
	if err != nil {
		return 0, fmt.Errorf("fetch captcha: %w", err)
	}
	return a.solver.Solve(ctx, resp.Body)
}

// Logout invalidates the session and reports whether the probe agrees.
func (a *Authenticator) Logout(ctx context.Context) (bool, error) {
	if _, err := a.session.Page(ctx, a.site.LogoutPath, nil); err != nil {
		return false, fmt.Errorf("logout: %w", err)
	}
	ok, err := a.probe.IsAuthenticated(ctx)
	if err != nil {
		return false, fmt.Errorf("probe: %w", err)
	}
	if !ok {
		a.setState(StateUnauthenticated)
	}
	return !ok, nil
}
