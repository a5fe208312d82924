package feed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(stationsURL, tpl string, timeout time.Duration) *Client {
	return NewClient(stationsURL, tpl, timeout, slog.New(slog.DiscardHandler))
}

func TestFetchStationCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/doc/hydrometric_StationList.csv", r.URL.Path)
		_, _ = w.Write([]byte(catalogCSV))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL+"/doc/hydrometric_StationList.csv", "", time.Second)
	body, err := c.FetchStationCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, catalogCSV, body)
}

func TestFetchStationReadingsExpandsTemplate(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(readingsCSV))
	}))
	defer srv.Close()

	c := newTestClient("", srv.URL+"/csv/{prov}/hourly/{prov}_{id}_hourly_hydrometric.csv", time.Second)
	body, err := c.FetchStationReadings(context.Background(), "08MF005", "BC")
	require.NoError(t, err)
	assert.Equal(t, readingsCSV, body)
	assert.Equal(t, "/csv/BC/hourly/BC_08MF005_hourly_hydrometric.csv", gotPath)
}

func TestReadingsURLDefaultTemplate(t *testing.T) {
	c := newTestClient("", "", time.Second)
	assert.Equal(t,
		"https://dd.weather.gc.ca/hydrometric/csv/ON/hourly/ON_02KF005_hourly_hydrometric.csv",
		c.ReadingsURL("02KF005", "ON"),
	)
}

func TestFetchNon2xxIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient("", srv.URL+"/{prov}/{id}.csv", time.Second)
	_, err := c.FetchStationReadings(context.Background(), "08MF005", "BC")

	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, http.StatusNotFound, ferr.StatusCode)
	assert.Contains(t, ferr.URL, "/BC/08MF005.csv")
}

func TestFetchTimeoutIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", 50*time.Millisecond)
	_, err := c.FetchStationCatalog(context.Background())

	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Zero(t, ferr.StatusCode)
	assert.Error(t, ferr.Err)
}

func TestFetchHonoursContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(srv.URL, "", time.Second)
	_, err := c.FetchStationCatalog(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFetchWithoutProvinceSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := newTestClient("", srv.URL+"/{prov}/{id}.csv", time.Second)
	_, err := c.FetchStationReadings(context.Background(), "08MF005", "")

	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Zero(t, hits.Load())
}
