package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// ErrLoginExhausted means every login attempt was used up.
var ErrLoginExhausted = errors.New("login failed after maximum attempts")

// logoutTimeout bounds the logout and its verification probe, which run
// after the run context may already be cancelled.
const logoutTimeout = 15 * time.Second

type runnerOptions struct {
	recognizer Recognizer
	transport  http.RoundTripper
	stdout     io.Writer
	logger     *slog.Logger
}

// runner wires one session through login, polling and logout.
type runner struct {
	cfg     *Config
	session *Session
	probe   *Probe
	auth    *Authenticator
	poller  *Poller
	stdout  io.Writer
	logger  *slog.Logger

	transportErrors int
	printed         bool
}

func newRunner(cfg *Config, opts runnerOptions) (*runner, error) {
	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}
	stdout := opts.stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	recognizer := opts.recognizer
	if recognizer == nil {
		var err error
		recognizer, err = newRecognizer(cfg.Captcha)
		if err != nil {
			return nil, err
		}
	}

	session, err := newSession(sessionOptions{
		baseURL:   cfg.Site.BaseURL,
		profile:   getProfile(cfg.Browser),
		timeout:   cfg.Timeout,
		transport: opts.transport,
		logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	probe := newProbe(session, cfg.Site)
	solver := newCaptchaSolver(recognizer, cfg.Captcha, logger)

	return &runner{
		cfg:     cfg,
		session: session,
		probe:   probe,
		auth:    newAuthenticator(session, solver, probe, cfg.Site, cfg.LoginJitter, logger),
		poller:  newPoller(session, cfg.Site, cfg.PollJitter, logger),
		stdout:  stdout,
		logger:  logger,
	}, nil
}

// Run logs in, polls until a seat is taken and always logs out, even when
// ctx was cancelled. The returned error is nil only when polling ended on
// a non-exhausted response.
func (r *runner) Run(ctx context.Context) (RunReport, error) {
	var report RunReport
	err := r.loginAndSelect(ctx, &report)
	if err != nil && !errors.Is(err, context.Canceled) {
		report.Error = err.Error()
	}

	report.LoggedOut = r.logout(ctx)
	return report, err
}

func (r *runner) loginAndSelect(ctx context.Context, report *RunReport) error {
	creds := Credentials{Username: r.cfg.Username, PasswordDigest: r.cfg.PasswordDigest}
	for {
		ok, err := r.auth.Login(ctx, creds, r.cfg.MaxAttempts)
		report.LoginAttempts += len(r.auth.Attempts())
		if err != nil {
			if retry := r.retryable(ctx, err); retry != nil {
				return retry
			}
			continue
		}
		if !ok {
			return ErrLoginExhausted
		}
		report.LoggedIn = true

		out, err := r.poller.SelectUntilSuccess(ctx, r.cfg.Courses, r.progress)
		r.endProgress()
		if out.Status != 0 {
			report.Outcome = newOutcomeReport(out)
		}
		if err == nil {
			return nil
		}
		if retry := r.retryable(ctx, err); retry != nil {
			return retry
		}
	}
}

// retryable returns nil when err is a transport failure that should be
// retried by logging in again, or the error to stop with otherwise.
func (r *runner) retryable(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrNoTargets) {
		return err
	}
	r.transportErrors++
	if r.transportErrors > r.cfg.MaxTransportErrors {
		return fmt.Errorf("giving up after %d consecutive transport errors: %w", r.transportErrors, err)
	}
	r.logger.Warn("transport error, logging in again", "error", err,
		"count", r.transportErrors, "max", r.cfg.MaxTransportErrors)
	return r.cfg.LoginJitter.Sleep(ctx)
}

func (r *runner) progress(o SelectionOutcome) {
	r.transportErrors = 0
	if r.cfg.JSON {
		r.logger.Info("select", "course", o.CourseID, "outcome", o.Kind)
		return
	}
	fmt.Fprint(r.stdout, progressLine(o))
	r.printed = true
}

func (r *runner) endProgress() {
	if r.printed {
		fmt.Fprintln(r.stdout)
		r.printed = false
	}
}

// logout runs on a context detached from ctx so a cancelled run still
// signs out, and reports whether the probe confirms it.
func (r *runner) logout(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
	defer cancel()

	ok, err := r.auth.Logout(ctx)
	if err != nil {
		r.logger.Error("logout failed", "error", err)
		return false
	}
	if !ok {
		r.logger.Warn("session still active after logout")
		return false
	}
	r.logger.Info("logged out")
	return true
}
