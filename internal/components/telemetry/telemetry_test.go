package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := NewRecorder()
	tel := NewScopedAPI("rio", rec)

	err := errors.New("boom")
	tel.ReportBroken("source.scrape", err)
	tel.ReportWarning("source.parse-event", "Nosferatu")
	tel.ReportCount("source.screenings", 12)

	broken := rec.Reports("broken", "")
	require.Len(t, broken, 1)
	require.Equal(t, "rio: source.scrape", broken[0].ID)
	require.Equal(t, []any{err}, broken[0].Params)

	require.Len(t, rec.Reports("warning", "parse-event"), 1)
	require.Len(t, rec.Reports("warning", "scrape"), 0)

	counts := rec.Reports("count", "rio:")
	require.Len(t, counts, 1)
	require.Equal(t, []any{int64(12)}, counts[0].Params)
}
