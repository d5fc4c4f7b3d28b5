// Package browsertest provides an in-memory browser.Browser for adapter tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"londoncinemas/lib/browser"
)

// Page is what the fake browser shows for a url.
type Page struct {
	HTML      string
	Responses []browser.Response
	Buttons   []Button
}

// Button replaces the current page with Page when clicked.
type Button struct {
	Text string
	Page Page
}

// Fake serves Pages keyed by exact url.
type Fake struct {
	Pages map[string]Page
	// StartErr is returned from NewSession when set.
	StartErr error

	mutex    sync.Mutex
	visited  []string
	sessions int
}

func (f *Fake) NewSession(ctx context.Context, opts browser.SessionOptions) (browser.Session, error) {
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	f.mutex.Lock()
	f.sessions++
	f.mutex.Unlock()
	return &session{fake: f, opts: opts}, nil
}

// Visited returns every url navigated to, across sessions.
func (f *Fake) Visited() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string{}, f.visited...)
}

type session struct {
	fake      *Fake
	opts      browser.SessionOptions
	current   *Page
	responses []browser.Response
	closed    bool
}

func (s *session) observe(responses []browser.Response) {
	for _, res := range responses {
		body := res.Body
		res.Body = nil
		if s.opts.Capture != nil && s.opts.Capture(res) {
			res.Body = body
		}
		s.responses = append(s.responses, res)
	}
}

func (s *session) Navigate(ctx context.Context, url string) error {
	if s.closed {
		return fmt.Errorf("session closed")
	}
	s.fake.mutex.Lock()
	s.fake.visited = append(s.fake.visited, url)
	page, ok := s.fake.Pages[url]
	s.fake.mutex.Unlock()
	if !ok {
		return fmt.Errorf("navigate %s: no such page", url)
	}
	s.current = &page
	s.observe(page.Responses)
	return nil
}

func (s *session) Wait(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func (s *session) Responses() []browser.Response {
	return append([]browser.Response{}, s.responses...)
}

func (s *session) ResetResponses() {
	s.responses = nil
}

func (s *session) HTML(ctx context.Context) (string, error) {
	if s.current == nil {
		return "", fmt.Errorf("no page loaded")
	}
	return s.current.HTML, nil
}

func (s *session) ClickButton(ctx context.Context, substrings ...string) (bool, error) {
	if s.current == nil {
		return false, fmt.Errorf("no page loaded")
	}
	for _, btn := range s.current.Buttons {
		text := strings.ToLower(btn.Text)
		for _, sub := range substrings {
			if strings.Contains(text, strings.ToLower(sub)) {
				page := btn.Page
				s.current = &page
				s.observe(page.Responses)
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *session) Close() error {
	s.closed = true
	return nil
}
