package telemetry

import (
	"fmt"
)

// API is what components report through instead of logging directly, tests
// swap in a Recorder to assert on what was reported.
type API interface {
	// ReportBroken reports something that needs fixing: a venue that could
	// not be scraped, a snapshot that could not be written.
	//
	// `id` names the component and method that broke, lowercase, formatted
	// `<struct>.<method-with-dashes>` (ex. `source.fetch-showtimes`). It
	// should be stable enough to grep a log stream for. Details like the
	// business date or status code go into params.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something tolerated that may still be worth a
	// look, like a listing entry that had to be skipped. `id` follows the
	// same rules as ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug reports tracing information, dropped unless verbose.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the value of a count at this point in time, ex. how
	// many screenings a venue produced on this run. Values are not summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace, usually the package name.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scoped(id string) string {
	return fmt.Sprintf("%s: %s", s.namespace, id)
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scoped(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scoped(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scoped(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scoped(id), count)
}
