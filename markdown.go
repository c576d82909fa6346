package main

import (
	"bytes"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// Tags that never carry the portal's message text.
var stripTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"svg":      true,
	"head":     true,
}

// responseMarkdown renders a portal response as markdown. The select
// endpoint answers with a small page, sometimes just an alert script, so
// anything that is not HTML or fails to convert is returned verbatim.
func responseMarkdown(raw []byte) string {
	if !bytes.Contains(raw, []byte("<")) {
		return strings.TrimSpace(string(raw))
	}
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(string(raw))
	}
	stripUnwantedNodes(doc)
	if body := findElement(doc, "body"); body != nil {
		doc = body
	}

	md, err := htmltomarkdown.ConvertNode(doc)
	if err != nil {
		return strings.TrimSpace(string(raw))
	}
	text := strings.TrimSpace(string(md))
	if text == "" {
		return strings.TrimSpace(string(raw))
	}
	return text
}

// singleLine collapses text for the one-line progress display.
func singleLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func stripUnwantedNodes(doc *html.Node) {
	var toRemove []*html.Node
	collectUnwanted(doc, &toRemove)
	for _, n := range toRemove {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func collectUnwanted(n *html.Node, toRemove *[]*html.Node) {
	if n.Type == html.ElementNode && stripTags[n.Data] {
		*toRemove = append(*toRemove, n)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectUnwanted(c, toRemove)
	}
}

func findElement(n *html.Node, tags ...string) *html.Node {
	if n.Type == html.ElementNode {
		for _, tag := range tags {
			if n.Data == tag {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tags...); found != nil {
			return found
		}
	}
	return nil
}
