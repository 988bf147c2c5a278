package places_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/helpyourself/companion/backend/internal/service/places"
)

func newClient(t *testing.T, handler http.HandlerFunc) *places.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := places.New(places.Options{APIKey: "maps-key", BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	return c
}

func readBody(t *testing.T, r *http.Request) gjson.Result {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	return gjson.ParseBytes(raw)
}

func TestTextSearchSortedByRating(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/places:searchText", r.URL.Path)
		assert.Equal(t, "maps-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "places.rating")

		body := readBody(t, r)
		assert.Equal(t, "therapist", body.Get("textQuery").String())
		assert.Equal(t, int64(20), body.Get("maxResultCount").Int())
		assert.Equal(t, "RELEVANCE", body.Get("rankPreference").String())
		assert.InDelta(t, 12.97, body.Get("locationBias.circle.center.latitude").Float(), 0.0001)
		assert.InDelta(t, 5000, body.Get("locationBias.circle.radius").Float(), 0.0001)

		_, _ = w.Write([]byte(`{"places":[
			{"id":"a","displayName":{"text":"Calm Minds"},"formattedAddress":"1 Road","location":{"latitude":12.9,"longitude":77.5},"rating":4.1},
			{"id":"b","displayName":{"text":"Open Door"},"formattedAddress":"2 Road","location":{"latitude":12.8,"longitude":77.6}},
			{"id":"c","displayName":{"text":"Harbor"},"formattedAddress":"3 Road","location":{"latitude":12.7,"longitude":77.7},"rating":4.8}
		]}`))
	})

	found, err := c.NearbyTherapists(t.Context(), 12.97, 77.59)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{found[0].ID, found[1].ID, found[2].ID})
	assert.Equal(t, "Harbor", found[0].Name)
	assert.Equal(t, "3 Road", found[0].Address)
	assert.InDelta(t, 77.7, found[0].Lng, 0.0001)
	assert.Zero(t, found[2].Rating)
}

func TestFallsBackToNearbyHealth(t *testing.T) {
	var paths []string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/places:searchText" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		body := readBody(t, r)
		assert.Equal(t, "health", body.Get("includedTypes.0").String())
		assert.InDelta(t, 5000, body.Get("locationRestriction.circle.radius").Float(), 0.0001)
		_, _ = w.Write([]byte(`{"places":[{"id":"h","displayName":{"text":"Clinic"},"rating":3.5}]}`))
	})

	found, err := c.NearbyTherapists(t.Context(), 1, 2)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Clinic", found[0].Name)
	assert.Equal(t, []string{"/places:searchText", "/places:searchNearby"}, paths)
}

func TestNoneFound(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"places":[]}`))
	})
	_, err := c.NearbyTherapists(t.Context(), 1, 2)
	require.ErrorIs(t, err, places.ErrNoneFound)
	assert.Equal(t, "No therapists found nearby.", err.Error())
}

func TestAPIErrorMessage(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
	})
	_, err := c.NearbyTherapists(t.Context(), 1, 2)
	require.ErrorContains(t, err, "API key not valid")
}

func TestRejectsBadCoordinates(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected request")
	})
	_, err := c.NearbyTherapists(t.Context(), 91, 0)
	require.Error(t, err)
}
