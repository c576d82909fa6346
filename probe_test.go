package main

import (
	"context"
	"net/http"
	"testing"
)

func TestProbeIsAuthenticated(t *testing.T) {
	ctx := context.Background()

	t.Run("marker on 200", func(t *testing.T) {
		p := newFakePortal(t)
		rig := newTestRig(t, p, staticRecognizer(""))
		if _, err := rig.session.Page(ctx, rig.cfg.Site.LoginPath, nil); err != nil {
			t.Fatal(err)
		}
		p.setLoggedIn(true)

		for i := 0; i < 3; i++ {
			ok, err := rig.probe.IsAuthenticated(ctx)
			if err != nil {
				t.Fatalf("probe %d: %v", i, err)
			}
			if !ok {
				t.Fatalf("probe %d: expected authenticated", i)
			}
		}
	})

	t.Run("no session cookie", func(t *testing.T) {
		p := newFakePortal(t)
		rig := newTestRig(t, p, staticRecognizer(""))
		p.setLoggedIn(true)

		ok, err := rig.probe.IsAuthenticated(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("expected unauthenticated without the session cookie")
		}
	})

	t.Run("error status", func(t *testing.T) {
		p := newFakePortal(t)
		p.probeStatus = http.StatusInternalServerError
		rig := newTestRig(t, p, staticRecognizer(""))
		if _, err := rig.session.Page(ctx, rig.cfg.Site.LoginPath, nil); err != nil {
			t.Fatal(err)
		}
		p.setLoggedIn(true)

		ok, err := rig.probe.IsAuthenticated(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("a 500 must not count as authenticated even with the marker")
		}
	})

	t.Run("transport failure is an error", func(t *testing.T) {
		p := newFakePortal(t)
		rig := newTestRig(t, p, staticRecognizer(""))
		p.srv.Close()

		if _, err := rig.probe.IsAuthenticated(ctx); err == nil {
			t.Fatal("expected an error from a closed server")
		}
	})
}

func TestAuthenticatedResponse(t *testing.T) {
	marker := []byte("classicLook0")
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"ok with marker", 200, `<body class="classicLook0">`, true},
		{"ok without marker", 200, `<body>login</body>`, false},
		{"redirect with marker", 302, `classicLook0`, false},
		{"empty body", 200, ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := authenticatedResponse(tt.status, []byte(tt.body), marker); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
