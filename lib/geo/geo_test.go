package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHaversine(t *testing.T) {
	// Rio Cinema to the Prince Charles Cinema
	km := Haversine(51.5489, -0.0758, 51.5112, -0.1304)
	require.InDelta(t, 5.65, km, 0.1)
	require.Equal(t, 0.0, Haversine(51.5, -0.1, 51.5, -0.1))
}

func TestFormatDistance(t *testing.T) {
	require.Equal(t, "850m", FormatDistance(0.85))
	require.Equal(t, "2.3km", FormatDistance(2.34))
	require.Equal(t, "1.0km", FormatDistance(1))
}

func TestPostcodeLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/postcodes/E82PB" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":404,"error":"Postcode not found"}`))
			return
		}
		w.Write([]byte(`{"status":200,"result":{"postcode":"E8 2PB","latitude":51.5489,"longitude":-0.0758}}`))
	}))
	defer server.Close()

	client := NewPostcodeClient(server.URL)

	lat, lon, err := client.Lookup(context.Background(), " e8 2pb ")
	require.NoError(t, err)
	require.Equal(t, 51.5489, lat)
	require.Equal(t, -0.0758, lon)

	_, _, err = client.Lookup(context.Background(), "ZZ1 1ZZ")
	require.ErrorIs(t, err, ErrUnknownPostcode)
}
