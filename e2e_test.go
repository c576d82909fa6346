package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeSolverService answers 2captcha requests with a fixed transcription.
func fakeSolverService(t *testing.T, text string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":1,"request":"1"}`)
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":1,"request":%q}`, text)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestE2ERunCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	clearEnv(t)

	p := newFakePortal(t)
	p.selectReply = func(id string, n int) string {
		if id == "111" {
			return capacityPage
		}
		return selectedPage
	}
	solver := fakeSolverService(t, "12 4 3")

	config := fmt.Sprintf(`
username: student
password_sm3: %s
courses: ["111", "222"]
max_attempts: 2
login_jitter: {base: 0s, spread: 0s}
poll_jitter: {base: 0s, spread: 0s}
site:
  base_url: %s/graduate
captcha:
  backend: 2captcha
  api_key: k3y
  api_url: %s
`, testDigest, p.srv.URL, solver.URL)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(config), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("logs in, selects and logs out", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		cmd := newRootCmd()
		var out strings.Builder
		cmd.SetOut(&out)
		cmd.SetErr(&strings.Builder{})
		cmd.SetArgs([]string{"run", "--config", path, "--env-file", ""})
		if err := cmd.ExecuteContext(ctx); err != nil {
			t.Fatalf("run failed: %v\n%s", err, out.String())
		}

		for _, want := range []string{"login: ok (1 attempts)", "course 222: succeeded", "选课成功", "logout: confirmed"} {
			if !strings.Contains(out.String(), want) {
				t.Fatalf("expected %q in output:\n%s", want, out.String())
			}
		}
		if got := strings.Join(p.selected(), ","); got != "111,111,222" {
			t.Fatalf("unexpected select order %s", got)
		}
	})

	t.Run("sends the browser profile headers", func(t *testing.T) {
		uas := make(chan string, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uas <- r.Header.Get("User-Agent")
		}))
		defer srv.Close()

		for _, browser := range []string{"chrome", "firefox"} {
			session, err := newSession(sessionOptions{baseURL: srv.URL, profile: getProfile(browser), logger: discardLogger()})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := session.Page(context.Background(), "/", nil); err != nil {
				t.Fatal(err)
			}
			ua := <-uas
			want := map[string]string{"chrome": "Chrome", "firefox": "Firefox"}[browser]
			if !strings.Contains(ua, want) {
				t.Fatalf("expected %s in user-agent, got %q", want, ua)
			}
		}
	})
}
