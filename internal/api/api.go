// Package api serves the latest snapshot over a read-only HTTP API, together
// with the static viewer that consumes it.
package api

import (
	_ "embed"
	"net/http"

	"londoncinemas/internal/cinema"
	"londoncinemas/internal/components/assert"
	"londoncinemas/internal/components/chrono"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/internal/snapshot"
	"londoncinemas/lib/timezone"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const report_api_bad_request = "api.bad-request"

//go:embed viewer/index.html
var viewerHTML []byte

type Options struct {
	// Cache is consulted for every GET when set.
	Cache Cache
}

type Server struct {
	store   snapshot.Store
	cinemas []cinema.Cinema
	time    chrono.API
	tel     telemetry.API
}

func NewServer(store snapshot.Store, cinemas []cinema.Cinema, time chrono.API, tel telemetry.API) Server {
	assert.NotNil(time)
	assert.NotNil(tel)
	if cinemas == nil {
		cinemas = []cinema.Cinema{}
	}
	return Server{
		store:   store,
		cinemas: cinemas,
		time:    time,
		tel:     telemetry.NewScopedAPI("api", tel),
	}
}

// Echo returns a configured echo instance with every route registered, at
// the root and again under /api.
func (s Server) Echo(opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	}))

	var mw []echo.MiddlewareFunc
	if opts.Cache != nil {
		mw = append(mw, CacheMiddleware(opts.Cache, s.time, s.tel))
	}

	e.GET("/", s.viewer)
	for _, prefix := range []string{"", "/api"} {
		e.GET(prefix+"/cinemas", s.listCinemas, mw...)
		e.GET(prefix+"/screenings", s.listScreenings, mw...)
		e.GET(prefix+"/screenings/today", s.listToday, mw...)
		e.GET(prefix+"/health", s.health)
	}
	return e
}

type cinemasResponse struct {
	Cinemas []cinema.Cinema `json:"cinemas"`
}

type screeningsResponse struct {
	Screenings  []cinema.Screening `json:"screenings"`
	Total       int                `json:"total"`
	GeneratedAt *string            `json:"generated_at"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s Server) listCinemas(c echo.Context) error {
	return c.JSON(http.StatusOK, cinemasResponse{Cinemas: s.cinemas})
}

func (s Server) listScreenings(c echo.Context) error {
	return s.screenings(c, snapshot.Query{
		CinemaID: c.QueryParam("cinema"),
		Date:     c.QueryParam("date"),
	})
}

func (s Server) listToday(c echo.Context) error {
	return s.screenings(c, snapshot.Query{
		CinemaID: c.QueryParam("cinema"),
		Date:     timezone.Date(s.time.Now()),
	})
}

// ListScreenings applies `q` to the current snapshot, a missing or corrupt
// snapshot yields an empty result.
func (s Server) ListScreenings(q snapshot.Query) (snapshot.File, []cinema.Screening) {
	file := s.store.Load()
	return file, snapshot.Filter(file.Screenings, q)
}

func (s Server) screenings(c echo.Context, q snapshot.Query) error {
	err := q.Validate()
	if err != nil {
		s.tel.ReportDebug("rejected query", c.Request().URL.String(), err)
		s.tel.ReportCount(report_api_bad_request, 1)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	file, matches := s.ListScreenings(q)
	res := screeningsResponse{
		Screenings: matches,
		Total:      len(matches),
	}
	if file.GeneratedAt != nil {
		generatedAt := cinema.FormatTime(*file.GeneratedAt)
		res.GeneratedAt = &generatedAt
	}
	return c.JSON(http.StatusOK, res)
}

func (s Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: cinema.FormatTime(s.time.Now()),
	})
}

func (s Server) viewer(c echo.Context) error {
	return c.Blob(http.StatusOK, echo.MIMETextHTMLCharsetUTF8, viewerHTML)
}
