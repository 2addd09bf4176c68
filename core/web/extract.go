package web

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// boilerplate is removed before the readable text is taken.
const boilerplate = "script, style, noscript, template, nav, header, footer, aside, form, iframe, svg, button"

var blockElements = map[string]bool{
	"address": true, "article": true, "blockquote": true, "br": true, "dd": true, "div": true,
	"dl": true, "dt": true, "figcaption": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "hr": true, "li": true, "main": true, "ol": true, "p": true,
	"pre": true, "section": true, "table": true, "td": true, "th": true, "tr": true, "ul": true,
}

// Extract returns the main readable text of an html page, one block per line.
// The main or article element is preferred over the whole body.
func Extract(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	doc.Find(boilerplate).Remove()

	content := doc.Find("main, article, [role=main]").First()
	if content.Length() == 0 || strings.TrimSpace(content.Text()) == "" {
		content = doc.Find("body")
	}
	if content.Length() == 0 {
		content = doc.Selection
	}

	var b strings.Builder
	for _, node := range content.Nodes {
		writeText(&b, node)
	}

	return normalizeLines(b.String()), nil
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		b.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteString("\n")
	}
}

// normalizeLines collapses whitespace inside lines and drops empty lines.
func normalizeLines(text string) string {
	lines := []string{}
	for _, line := range strings.Split(text, "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			lines = append(lines, strings.Join(fields, " "))
		}
	}
	return strings.Join(lines, "\n")
}

// Links returns the absolute http(s) links of a page that share the origin
// (scheme and host) of base, without fragments and in document order.
func Links(body []byte, page *url.URL, base *url.URL) []string {
	seen := map[string]bool{}
	links := []string{}

	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return links
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		name, hasAttr := tokenizer.TagName()
		if string(name) != "a" || !hasAttr {
			continue
		}

		for {
			key, val, more := tokenizer.TagAttr()
			if string(key) == "href" {
				if link, ok := resolveLink(string(val), page, base); ok && !seen[link] {
					seen[link] = true
					links = append(links, link)
				}
			}
			if !more {
				break
			}
		}
	}
}

func resolveLink(href string, page *url.URL, base *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	link := page.ResolveReference(ref)
	if link.Scheme != "http" && link.Scheme != "https" {
		return "", false
	}
	if !sameOrigin(link, base) {
		return "", false
	}

	link.Fragment = ""
	link.RawFragment = ""
	return link.String(), true
}

func sameOrigin(a *url.URL, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
