package venues

import (
	"path/filepath"
	"testing"
	"time"

	"londoncinemas/internal/components/chrono"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/lib/browser/browsertest"
	"londoncinemas/lib/timezone"

	"github.com/stretchr/testify/require"
)

func deps() Deps {
	return Deps{
		Browser: &browsertest.Fake{},
		Time:    chrono.NewFixed(timezone.Naive(2025, time.December, 26, 10, 0)),
		Tel:     telemetry.NewRecorder(),
	}
}

func ids(r Registry) []string {
	out := []string{}
	for _, c := range r.Cinemas {
		out = append(out, c.ID)
	}
	return out
}

func TestBuildOrder(t *testing.T) {
	registry, err := Build(Config{}, deps())
	require.NoError(t, err)

	require.Equal(t, []string{
		"rio",
		"curzon-hoxton",
		"prince-charles-cinema",
		"barbican-cinema",
		"garden-cinema",
		"everyman-broadgate",
		"vue-islington",
	}, ids(registry))

	names := []string{}
	for _, e := range registry.Entries {
		names = append(names, e.Name)
	}
	require.Equal(t, []string{
		"Rio Cinema",
		"Curzon Hoxton",
		"Prince Charles Cinema",
		"Barbican Cinema",
		"Garden Cinema",
		"Everyman Broadgate",
		"Vue Islington",
	}, names)
}

func TestBuildDisabledAndVenue(t *testing.T) {
	registry, err := Build(Config{
		CurzonVenue:  "soho",
		Disabled:     []string{"vue-islington", "everyman-broadgate"},
		DebugHttpDir: filepath.Join(t.TempDir(), "http"),
	}, deps())
	require.NoError(t, err)

	require.Len(t, registry.Entries, 5)
	require.Equal(t, "curzon-soho", registry.Cinemas[1].ID)

	entry, ok := registry.Find("curzon-soho")
	require.True(t, ok)
	require.Equal(t, "Curzon Soho", entry.Name)

	_, ok = registry.Find("vue-islington")
	require.False(t, ok)
}
