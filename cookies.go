package main

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// newSessionJar returns the in-memory jar that carries the portal session.
// Cookies live only as long as the process; a restart always logs in again.
func newSessionJar() http.CookieJar {
	jar, _ := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
	})
	return jar
}

// describeCookies renders the cookies the jar would send to u as
// "name=abcd…" pairs, sorted by name. Values are truncated so session ids
// never land in logs in full.
func describeCookies(jar http.CookieJar, u *url.URL) string {
	if jar == nil || u == nil {
		return ""
	}
	cookies := jar.Cookies(u)
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+maskValue(c.Value))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func maskValue(v string) string {
	const keep = 4
	if len(v) <= keep {
		return v
	}
	return v[:keep] + "…"
}
