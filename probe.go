package main

import (
	"bytes"
	"context"
	"net/http"
)

// Probe answers "is this session logged in?" by loading a page that only
// renders a known marker for authenticated users.
type Probe struct {
	session *Session
	path    string
	marker  []byte
}

func newProbe(session *Session, site SiteConfig) *Probe {
	return &Probe{session: session, path: site.ProbePath, marker: []byte(site.ProbeMarker)}
}

// IsAuthenticated issues one read-only request. Transport failures are
// returned as errors, not folded into false.
func (p *Probe) IsAuthenticated(ctx context.Context) (bool, error) {
	resp, err := p.session.Page(ctx, p.path, nil)
	if err != nil {
		return false, err
	}
	return authenticatedResponse(resp.StatusCode, resp.Body, p.marker), nil
}

func authenticatedResponse(status int, body, marker []byte) bool {
	return status == http.StatusOK && bytes.Contains(body, marker)
}
