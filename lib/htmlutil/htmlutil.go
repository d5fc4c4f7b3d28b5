package htmlutil

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func writeText(node *html.Node, out *strings.Builder) {
	switch node.Type {
	case html.TextNode:
		out.WriteString(node.Data)
	case html.ElementNode:
		// inline scripts and styles show up in venue markup next to titles
		if node.Data == "script" || node.Data == "style" {
			return
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		writeText(child, out)
	}
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanText drops non-printable runes, collapses whitespace runs into single
// spaces and trims the result.
func CleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// Text returns the cleaned text content of every node in the selection,
// separate nodes are joined by a space.
func Text(sel *goquery.Selection) string {
	var out strings.Builder
	for _, n := range sel.Nodes {
		writeText(n, &out)
		out.WriteByte(' ')
	}
	return CleanText(out.String())
}

// Resolve resolves a possibly relative href against `base`, returning an
// empty string when the href cannot be parsed.
func Resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	link, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return link.String()
	}
	return base.ResolveReference(link).String()
}
