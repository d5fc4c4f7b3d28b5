package textutil

import (
	"regexp"
	"strings"
)

// JoinNotes joins the non-empty parts with "; ", returning an empty string
// when there is nothing to join.
func JoinNotes(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, "; ")
}

// Ptr returns a pointer to `s`, or nil when `s` is empty.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var gluedCertificate = regexp.MustCompile(`(U|PG|12A|12|15|18|TBC)$`)

// StripGluedCertificate removes a BBFC certificate rendered directly after
// the title with no separator ("The Shining15").
func StripGluedCertificate(title string) string {
	return strings.TrimSpace(gluedCertificate.ReplaceAllString(strings.TrimSpace(title), ""))
}

// GluedCertificate reports whether `title` ends with a certificate, with or
// without a separating space.
func GluedCertificate(title string) bool {
	return gluedCertificate.MatchString(strings.TrimSpace(title))
}
