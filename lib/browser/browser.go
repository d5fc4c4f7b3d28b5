// Package browser exposes a controllable headless browser as a capability:
// navigate, observe network responses, read the rendered DOM and click.
package browser

import (
	"context"
	"strings"
	"time"
)

// Response is a network response observed by a session.
type Response struct {
	URL            string
	Status         int
	RequestHeaders map[string]string
	// Body is only populated when the session's capture predicate accepted
	// the response.
	Body []byte
}

// Header returns the request header `key`, case-insensitively.
func (r Response) Header(key string) string {
	for k, v := range r.RequestHeaders {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// SessionOptions configures a browsing session.
type SessionOptions struct {
	// Capture decides whether the body of a finished response is kept, it
	// sees the response with an empty Body.
	Capture func(res Response) bool
	// NavigationTimeout bounds every Navigate call, defaults to 60s.
	NavigationTimeout time.Duration
}

// Browser creates isolated browsing sessions.
type Browser interface {
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// Session is a single browser tab.
type Session interface {
	// Navigate loads `url` and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// Wait pauses for `d`, giving client-side code time to render.
	Wait(ctx context.Context, d time.Duration) error
	// Responses returns every response observed since the session started
	// (or since the last ResetResponses), in completion order.
	Responses() []Response
	ResetResponses()
	// HTML returns the outer HTML of the rendered document.
	HTML(ctx context.Context) (string, error)
	// ClickButton clicks the first button whose text contains one of
	// `substrings` (case-insensitive), reporting whether one was found.
	ClickButton(ctx context.Context, substrings ...string) (bool, error)
	Close() error
}

// Sleep blocks for `d` or until `ctx` is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
