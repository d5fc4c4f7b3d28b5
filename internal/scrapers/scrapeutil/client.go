// Package scrapeutil builds the HTTP clients the venue adapters share.
package scrapeutil

import (
	"net/url"
	"time"

	"londoncinemas/internal/components/telemetry"
	"londoncinemas/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/purell"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// DefaultTimeout bounds every upstream request so that one unresponsive
// venue cannot stall a run.
const DefaultTimeout = time.Second * 30

type ClientOptions struct {
	BaseUrl string
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	// Interval is the minimum spacing between requests, zero means no limit.
	Interval time.Duration
	// CloudflareBypass wraps the transport for venues sitting behind
	// cloudflare's browser checks.
	CloudflareBypass bool
	Headers          map[string]string
	// Dump receives every exchange when set, see restyutil.Dump.
	Dump       restyutil.Output
	DumpPrefix string
}

func NewClient(opts ClientOptions, tel telemetry.API) *resty.Client {
	client := resty.New()
	if opts.BaseUrl != "" {
		client.SetBaseURL(opts.BaseUrl)
	}
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client.SetTimeout(timeout)
	client.SetHeader("user-agent", UserAgent)
	client.SetHeaders(opts.Headers)

	if opts.Interval > 0 {
		// one request per interval, the burst of 1 makes the first request immediate
		rateLimiter := rate.NewLimiter(rate.Every(opts.Interval), 1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, tel)
	restyutil.Dump(client, opts.DumpPrefix, opts.Dump)

	return client
}

// NormalizeURL canonicalizes a booking url so that trivially different
// spellings of the same link compare equal.
func NormalizeURL(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return link
	}
	return purell.NormalizeURL(
		parsed,
		purell.FlagsSafe|
			purell.FlagsUsuallySafeNonGreedy|
			purell.FlagRemoveFragment|
			purell.FlagSortQuery,
	)
}
