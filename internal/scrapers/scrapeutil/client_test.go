package scrapeutil

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"londoncinemas/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	testCases := []struct {
		input  string
		expect string
	}{
		{input: "HTTPS://Example.com:443/book?b=2&a=1#seats", expect: "https://example.com/book?a=1&b=2"},
		{input: "https://example.com/book/", expect: "https://example.com/book/"},
		{input: "https://example.com/./book", expect: "https://example.com/book"},
	}
	for _, test := range testCases {
		require.Equal(t, test.expect, NormalizeURL(test.input), test.input)
	}
}

func TestClientSpacesRequests(t *testing.T) {
	var hits int64
	var userAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		userAgent.Store(r.Header.Get("user-agent"))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{
		BaseUrl:  server.URL,
		Interval: time.Millisecond * 50,
	}, telemetry.NewRecorder())

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.R().Get("/")
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), time.Millisecond*100)
	require.Equal(t, int64(3), atomic.LoadInt64(&hits))
	require.Equal(t, UserAgent, userAgent.Load())
}
