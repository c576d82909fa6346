package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// ErrNoTargets is returned when there is nothing to select.
var ErrNoTargets = errors.New("no course ids to select")

// Poller keeps requesting seats until the capacity marker disappears.
type Poller struct {
	session    *Session
	site       SiteConfig
	classifier classifier
	jitter     Jitter
	logger     *slog.Logger
	now        func() time.Time
}

func newPoller(session *Session, site SiteConfig, jitter Jitter, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		session:    session,
		site:       site,
		classifier: newClassifier(site),
		jitter:     jitter,
		logger:     logger,
		now:        time.Now,
	}
}

// SelectUntilSuccess tries ids[0] once, then walks ids in order, pass after
// pass, for as long as every response carries the capacity marker. The
// first response without it ends the loop and is returned. onProgress, if
// set, sees every outcome. There is no attempt cap: the loop only stops on
// such a response, a transport error or ctx being done, in which case
// ctx.Err() is returned together with the last outcome seen.
func (p *Poller) SelectUntilSuccess(ctx context.Context, ids []string, onProgress func(SelectionOutcome)) (SelectionOutcome, error) {
	if len(ids) == 0 {
		return SelectionOutcome{}, ErrNoTargets
	}

	last, err := p.attempt(ctx, ids[0], onProgress)
	if err != nil {
		return last, err
	}

	for last.Kind == OutcomeCapacityExceeded {
		if err := p.jitter.Sleep(ctx); err != nil {
			return last, err
		}
		for i, id := range ids {
			out, err := p.attempt(ctx, id, onProgress)
			if err != nil {
				return last, err
			}
			last = out
			if last.Kind != OutcomeCapacityExceeded {
				break
			}
			if i < len(ids)-1 {
				if err := p.jitter.Sleep(ctx); err != nil {
					return last, err
				}
			}
		}
	}

	p.logger.Info("selection finished", "course", last.CourseID, "outcome", last.Kind)
	return last, nil
}

func (p *Poller) attempt(ctx context.Context, id string, onProgress func(SelectionOutcome)) (SelectionOutcome, error) {
	if err := ctx.Err(); err != nil {
		return SelectionOutcome{CourseID: id}, err
	}
	resp, err := p.session.Page(ctx, p.site.SelectPath, url.Values{p.site.SelectParam: {id}})
	if err == nil {
		err = resp.expectOK()
	}
	if err != nil {
		return SelectionOutcome{CourseID: id}, fmt.Errorf("select %s: %w", id, err)
	}

	outcome := SelectionOutcome{
		Kind:     p.classifier.classify(resp.Body),
		CourseID: id,
		Status:   resp.StatusCode,
		Text:     string(resp.Body),
		At:       p.now(),
	}
	p.logger.Debug("select response", "course", id, "status", resp.StatusCode, "outcome", outcome.Kind)
	if onProgress != nil {
		onProgress(outcome)
	}
	return outcome, nil
}
