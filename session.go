package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Response is a fully read and decoded HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the final URL after redirects.
	URL string
}

// StatusError is a non-2xx reply from an endpoint that must succeed. It is
// a transport failure, not a page to classify.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Code)
}

func (r *Response) expectOK() error {
	if r.StatusCode < 200 || r.StatusCode > 299 {
		return &StatusError{Code: r.StatusCode, URL: r.URL}
	}
	return nil
}

// Session is the cookie-bearing connection to the portal. It is owned by a
// single run and is not safe for concurrent use.
type Session struct {
	client  *http.Client
	profile BrowserProfile
	base    *url.URL
	timeout time.Duration
	logger  *slog.Logger
}

// sessionOptions configures newSession. A nil transport means the uTLS
// transport for the profile.
type sessionOptions struct {
	baseURL   string
	profile   BrowserProfile
	timeout   time.Duration
	transport http.RoundTripper
	logger    *slog.Logger
}

func newSession(opts sessionOptions) (*Session, error) {
	base, err := url.Parse(opts.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", opts.baseURL, err)
	}
	// Paths are resolved relative to the base, so it must end in a slash.
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	tr := opts.transport
	if tr == nil {
		tr, err = newTransport(opts.profile)
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
	}

	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		client: &http.Client{
			Transport: tr,
			Jar:       newSessionJar(),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		profile: opts.profile,
		base:    base,
		timeout: opts.timeout,
		logger:  logger,
	}, nil
}

// resolve turns an endpoint path into an absolute URL under the base.
func (s *Session) resolve(path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	u := s.base.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u, nil
}

// Page loads a top-level document.
func (s *Session) Page(ctx context.Context, path string, query url.Values) (*Response, error) {
	u, err := s.resolve(path, query)
	if err != nil {
		return nil, err
	}
	return s.do(ctx, http.MethodGet, u, nil, s.profile.Navigate)
}

// Image fetches a subresource such as the CAPTCHA image.
func (s *Session) Image(ctx context.Context, path string) (*Response, error) {
	u, err := s.resolve(path, nil)
	if err != nil {
		return nil, err
	}
	return s.do(ctx, http.MethodGet, u, nil, [][2]string{
		{"Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"},
		{"Sec-Fetch-Dest", "image"},
		{"Sec-Fetch-Mode", "no-cors"},
		{"Sec-Fetch-Site", "same-origin"},
	})
}

// PostForm submits an urlencoded form as a top-level navigation.
func (s *Session) PostForm(ctx context.Context, path string, form url.Values) (*Response, error) {
	u, err := s.resolve(path, nil)
	if err != nil {
		return nil, err
	}
	headers := append([][2]string{
		{"Content-Type", "application/x-www-form-urlencoded"},
		{"Origin", u.Scheme + "://" + u.Host},
	}, s.profile.Navigate...)
	return s.do(ctx, http.MethodPost, u, strings.NewReader(form.Encode()), headers)
}

func (s *Session) do(ctx context.Context, method string, u *url.URL, body *strings.Reader, extra [][2]string) (*Response, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
	}
	if err != nil {
		return nil, err
	}

	// Apply profile headers in order, then the per-request ones.
	for _, h := range s.profile.Headers {
		req.Header.Set(h[0], h[1])
	}
	for _, h := range extra {
		req.Header.Set(h[0], h[1])
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u.Path, err)
	}

	s.logger.Debug("http", "method", method, "path", u.Path, "status", resp.StatusCode,
		"bytes", len(data), "cookies", describeCookies(s.client.Jar, s.base))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		URL:        resp.Request.URL.String(),
	}, nil
}
