package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// roundTripper uses uTLS to establish TLS connections with browser-like
// fingerprints and routes HTTP/2 vs HTTP/1.1 traffic based on the ALPN
// protocol each host negotiated the first time it was dialed.
type roundTripper struct {
	profile BrowserProfile
	h2      *http2.Transport
	h1      *http.Transport

	mu   sync.Mutex
	alpn map[string]string
}

// newTransport creates a new http.RoundTripper that uses uTLS with the
// given browser profile's TLS ClientHello fingerprint.
func newTransport(profile BrowserProfile) (http.RoundTripper, error) {
	rt := &roundTripper{profile: profile, alpn: make(map[string]string)}

	// The *tls.Config parameter is ignored since uTLS builds the hello.
	rt.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return rt.dialConn(ctx, network, addr)
		},
	}

	rt.h1 = &http.Transport{
		Proxy:              http.ProxyFromEnvironment,
		DialTLSContext:     rt.dialConn,
		DisableCompression: true,
	}

	return rt, nil
}

// dialTLS creates a uTLS connection with the browser profile's fingerprint.
func (rt *roundTripper) dialTLS(ctx context.Context, network, addr string) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	dialer := &net.Dialer{}
	tcpConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	tlsConn := utls.UClient(tcpConn, &utls.Config{
		ServerName: host,
		NextProtos: []string{"h2", "http/1.1"},
	}, rt.profile.TLSHello)
	if err := tlsConn.Handshake(); err != nil {
		tcpConn.Close()
		return nil, fmt.Errorf("TLS handshake failed: %w", err)
	}
	return tlsConn, nil
}

// dialConn adapts dialTLS to the net.Conn signature the transports expect.
func (rt *roundTripper) dialConn(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := rt.dialTLS(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// protocolFor returns the ALPN protocol the host negotiates for our
// fingerprint. The result is cached per host:port.
func (rt *roundTripper) protocolFor(ctx context.Context, u *url.URL) (string, error) {
	addr := hostPort(u)

	rt.mu.Lock()
	proto, ok := rt.alpn[addr]
	rt.mu.Unlock()
	if ok {
		return proto, nil
	}

	conn, err := rt.dialTLS(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	proto = conn.ConnectionState().NegotiatedProtocol
	conn.Close()

	rt.mu.Lock()
	rt.alpn[addr] = proto
	rt.mu.Unlock()
	return proto, nil
}

// RoundTrip executes an HTTP request over HTTP/2 when the host negotiated
// h2 and over HTTP/1.1 otherwise.
func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return rt.h1.RoundTrip(req)
	}
	proto, err := rt.protocolFor(req.Context(), req.URL)
	if err != nil {
		return nil, err
	}
	if proto == "h2" {
		return rt.h2.RoundTrip(req)
	}
	return rt.h1.RoundTrip(req)
}

func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// readBody reads and decodes a response body according to its
// Content-Encoding. The profile headers advertise gzip, deflate, br and
// zstd, so all four must be handled here.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode failed: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("deflate decode failed: %w", err)
		}
		defer zr.Close()
		reader = zr
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("zstd decode failed: %w", err)
		}
		defer zr.Close()
		reader = zr
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	return body, nil
}
