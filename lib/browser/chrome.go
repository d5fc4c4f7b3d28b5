package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

type ChromeOptions struct {
	// ExecPath is the chrome binary, chromedp searches the usual locations
	// when empty.
	ExecPath string `json:"exec_path"`
	// Headful shows the browser window, useful when debugging an adapter.
	Headful   bool   `json:"headful"`
	UserAgent string `json:"user_agent"`
}

// Chrome implements Browser with chromedp. Every session gets its own
// browser process.
type Chrome struct {
	allocatorOptions []chromedp.ExecAllocatorOption
}

func NewChrome(opts ChromeOptions) Chrome {
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	allocatorOptions := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !opts.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(userAgent),
	)
	if opts.ExecPath != "" {
		allocatorOptions = append(allocatorOptions, chromedp.ExecPath(opts.ExecPath))
	}
	return Chrome{allocatorOptions: allocatorOptions}
}

func (c Chrome) NewSession(ctx context.Context, opts SessionOptions) (Session, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = time.Minute
	}

	allocatorCtx, cancelAllocator := chromedp.NewExecAllocator(ctx, c.allocatorOptions...)
	tabCtx, cancelTab := chromedp.NewContext(allocatorCtx)

	s := &chromeSession{
		ctx: tabCtx,
		cancel: func() {
			cancelTab()
			cancelAllocator()
		},
		opts:     opts,
		inflight: map[network.RequestID]*Response{},
	}
	chromedp.ListenTarget(tabCtx, s.onEvent)

	err := chromedp.Run(tabCtx, network.Enable())
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return s, nil
}

type chromeSession struct {
	ctx    context.Context
	cancel func()
	opts   SessionOptions

	mutex     sync.Mutex
	inflight  map[network.RequestID]*Response
	responses []Response
	// pending body fetches, each channel is closed once its fetch is done
	pending []chan struct{}
}

func headerMap(headers network.Headers) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func (s *chromeSession) request(id network.RequestID) *Response {
	res, ok := s.inflight[id]
	if !ok {
		res = &Response{RequestHeaders: map[string]string{}}
		s.inflight[id] = res
	}
	return res
}

// onEvent runs on the chromedp event loop and must not block.
func (s *chromeSession) onEvent(ev any) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		s.mutex.Lock()
		res := s.request(ev.RequestID)
		res.URL = ev.Request.URL
		for k, v := range headerMap(ev.Request.Headers) {
			res.RequestHeaders[k] = v
		}
		s.mutex.Unlock()
	case *network.EventRequestWillBeSentExtraInfo:
		// carries headers added by the network stack, including auth headers
		s.mutex.Lock()
		res := s.request(ev.RequestID)
		for k, v := range headerMap(ev.Headers) {
			res.RequestHeaders[k] = v
		}
		s.mutex.Unlock()
	case *network.EventResponseReceived:
		s.mutex.Lock()
		res := s.request(ev.RequestID)
		res.URL = ev.Response.URL
		res.Status = int(ev.Response.Status)
		s.mutex.Unlock()
	case *network.EventLoadingFailed:
		s.mutex.Lock()
		delete(s.inflight, ev.RequestID)
		s.mutex.Unlock()
	case *network.EventLoadingFinished:
		s.mutex.Lock()
		res, ok := s.inflight[ev.RequestID]
		delete(s.inflight, ev.RequestID)
		s.mutex.Unlock()
		if !ok || res.Status == 0 {
			return
		}

		if s.opts.Capture == nil || !s.opts.Capture(*res) {
			s.appendResponse(*res)
			return
		}

		done := make(chan struct{})
		s.mutex.Lock()
		s.pending = append(s.pending, done)
		s.mutex.Unlock()
		go func(id network.RequestID, res Response) {
			defer close(done)
			target := chromedp.FromContext(s.ctx).Target
			body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(s.ctx, target))
			if err == nil {
				res.Body = body
			}
			s.appendResponse(res)
		}(ev.RequestID, *res)
	}
}

func (s *chromeSession) appendResponse(res Response) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.responses = append(s.responses, res)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.opts.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(
		runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) Wait(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, d)
}

func (s *chromeSession) waitBodies() {
	s.mutex.Lock()
	pending := s.pending
	s.pending = nil
	s.mutex.Unlock()
	for _, done := range pending {
		select {
		case <-done:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *chromeSession) Responses() []Response {
	s.waitBodies()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]Response, len(s.responses))
	copy(out, s.responses)
	return out
}

func (s *chromeSession) ResetResponses() {
	s.waitBodies()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.responses = nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithTimeout(s.ctx, s.opts.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err != nil {
		return "", fmt.Errorf("read rendered html: %w", err)
	}
	return html, nil
}

const clickButtonScript = `(() => {
	const needles = %s;
	for (const btn of document.querySelectorAll('button')) {
		const text = (btn.textContent || '').toLowerCase();
		if (needles.some(n => text.includes(n))) {
			btn.click();
			return true;
		}
	}
	return false;
})()`

func (s *chromeSession) ClickButton(ctx context.Context, substrings ...string) (bool, error) {
	needles := make([]string, len(substrings))
	for i, sub := range substrings {
		needles[i] = fmt.Sprintf("%q", strings.ToLower(sub))
	}
	script := fmt.Sprintf(clickButtonScript, "["+strings.Join(needles, ",")+"]")

	runCtx, cancel := context.WithTimeout(s.ctx, s.opts.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var clicked bool
	err := chromedp.Run(runCtx, chromedp.Evaluate(script, &clicked))
	if err != nil {
		return false, fmt.Errorf("click button: %w", err)
	}
	return clicked, nil
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}
