package main

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

const (
	testDigest     = "08594e140bcc046e345325435218f67a85c38c63de6443b197b544d70ee62f26"
	capacityPage   = "<html><body><p>超过课容量</p></body></html>"
	selectedPage   = "<html><body><p>选课成功</p></body></html>"
	loginPageToken = `<html><form><input type="hidden" name="token" value="abc123"/></form></html>`
)

// fakePortal scripts the handful of endpoints the client touches. Login
// state is tied to the JSESSIONID cookie it hands out on the login page.
type fakePortal struct {
	srv   *httptest.Server
	image []byte

	mu           sync.Mutex
	loginPage    string
	answer       int
	session      string
	loggedIn     bool
	probeStatus  int
	selectStatus int
	selectReply  func(id string, n int) string

	loginPageHits int
	captchaHits   int
	submits       int
	probes        int
	logouts       int
	tokens        []string
	selects       []string
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()
	p := &fakePortal{
		image:        challengePNG(t, 90, 30, 20),
		loginPage:    loginPageToken,
		answer:       15,
		session:      "S3SSION0001",
		probeStatus:  http.StatusOK,
		selectStatus: http.StatusOK,
		selectReply:  func(string, int) string { return selectedPage },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/graduate/index.do", p.handleLoginPage)
	mux.HandleFunc("/graduate/getCaptcha.do", p.handleCaptcha)
	mux.HandleFunc("/graduate/j_acegi_security_check", p.handleSubmit)
	mux.HandleFunc("/graduate/listMyBulletined.do", p.handleProbe)
	mux.HandleFunc("/graduate/stuelectcourse/addScoreFromPlan.do", p.handleSelect)
	mux.HandleFunc("/graduate/sso/sso_logout.jsp", p.handleLogout)
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePortal) hasSession(r *http.Request) bool {
	c, err := r.Cookie("JSESSIONID")
	return err == nil && c.Value == p.session
}

func (p *fakePortal) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginPageHits++
	http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: p.session, Path: "/graduate"})
	fmt.Fprint(w, p.loginPage)
}

func (p *fakePortal) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.captchaHits++
	p.mu.Unlock()
	w.Header().Set("Content-Type", "image/png")
	w.Write(p.image)
}

func (p *fakePortal) handleSubmit(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.Method != http.MethodPost {
		http.Error(w, "method", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.submits++
	p.tokens = append(p.tokens, r.PostForm.Get("token"))
	_, hasGroup := r.PostForm["groupId"]
	if p.hasSession(r) && hasGroup &&
		r.PostForm.Get("token") == "abc123" &&
		r.PostForm.Get("j_username") == "student" &&
		r.PostForm.Get("j_password") == testDigest &&
		r.PostForm.Get("j_captcha") == strconv.Itoa(p.answer) {
		p.loggedIn = true
	}
	fmt.Fprint(w, "<html>login</html>")
}

func (p *fakePortal) handleProbe(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	w.WriteHeader(p.probeStatus)
	if p.loggedIn && p.hasSession(r) {
		fmt.Fprint(w, `<html><body class="classicLook0">bulletins</body></html>`)
		return
	}
	fmt.Fprint(w, `<html><body>please log in</body></html>`)
}

func (p *fakePortal) handleSelect(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := r.URL.Query().Get("taskid")
	p.selects = append(p.selects, id)
	w.WriteHeader(p.selectStatus)
	fmt.Fprint(w, p.selectReply(id, len(p.selects)))
}

func (p *fakePortal) handleLogout(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logouts++
	p.loggedIn = false
	fmt.Fprint(w, "<html>bye</html>")
}

func (p *fakePortal) counts() (loginPage, captcha, submits int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginPageHits, p.captchaHits, p.submits
}

func (p *fakePortal) postedTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.tokens...)
}

func (p *fakePortal) setLoggedIn(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loggedIn = v
}

func (p *fakePortal) logoutCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logouts
}

func (p *fakePortal) selected() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.selects...)
}

// testConfig points a valid configuration at the fake portal with all
// jitter removed.
func (p *fakePortal) testConfig() *Config {
	cfg := defaultConfig()
	cfg.Username = "student"
	cfg.PasswordDigest = testDigest
	cfg.Courses = []string{"114514"}
	cfg.MaxAttempts = 3
	cfg.Timeout = 5 * time.Second
	cfg.Site.BaseURL = p.srv.URL + "/graduate"
	cfg.LoginJitter = Jitter{}
	cfg.PollJitter = Jitter{}
	return cfg
}

// sequenceRecognizer returns texts in order, repeating the last one.
func sequenceRecognizer(texts ...string) Recognizer {
	var mu sync.Mutex
	i := 0
	return RecognizerFunc(func(context.Context, image.Image) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		text := texts[min(i, len(texts)-1)]
		i++
		return text, nil
	})
}

type testRig struct {
	cfg     *Config
	session *Session
	probe   *Probe
	auth    *Authenticator
	poller  *Poller
}

func newTestRig(t *testing.T, p *fakePortal, r Recognizer) *testRig {
	t.Helper()
	cfg := p.testConfig()
	logger := discardLogger()
	session, err := newSession(sessionOptions{
		baseURL: cfg.Site.BaseURL,
		profile: getProfile(cfg.Browser),
		timeout: cfg.Timeout,
		logger:  logger,
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	probe := newProbe(session, cfg.Site)
	solver := newCaptchaSolver(r, cfg.Captcha, logger)
	return &testRig{
		cfg:     cfg,
		session: session,
		probe:   probe,
		auth:    newAuthenticator(session, solver, probe, cfg.Site, cfg.LoginJitter, logger),
		poller:  newPoller(session, cfg.Site, cfg.PollJitter, logger),
	}
}

func testCreds() Credentials {
	return Credentials{Username: "student", PasswordDigest: testDigest}
}
