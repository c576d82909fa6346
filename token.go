package main

import (
	"bytes"
	"errors"
	"strings"

	"golang.org/x/net/html"
)

// ErrTokenNotFound means the login page no longer carries the anti-forgery
// token where we expect it. Retrying will not help.
var ErrTokenNotFound = errors.New("anti-forgery token not found on login page")

// extractToken reads the value between start and the next end marker. If
// the literal markers are absent (attribute order or quoting changed), it
// falls back to parsing the page for an <input name="token">.
func extractToken(page []byte, start, end string) (string, error) {
	text := string(page)
	if i := strings.Index(text, start); i >= 0 {
		rest := text[i+len(start):]
		if j := strings.Index(rest, end); j >= 0 {
			return rest[:j], nil
		}
	}
	if v, ok := findInputValue(page, "token"); ok {
		return v, nil
	}
	return "", ErrTokenNotFound
}

// findInputValue returns the value attribute of the first <input> whose
// name attribute equals name.
func findInputValue(page []byte, name string) (string, bool) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", false
	}

	var walk func(*html.Node) (string, bool)
	walk = func(n *html.Node) (string, bool) {
		if n.Type == html.ElementNode && n.Data == "input" && getAttr(n, "name") == name {
			for _, a := range n.Attr {
				if a.Key == "value" {
					return a.Val, true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if v, ok := walk(c); ok {
				return v, true
			}
		}
		return "", false
	}
	return walk(doc)
}

// getAttr returns the value of the named attribute, or "" if absent.
func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
