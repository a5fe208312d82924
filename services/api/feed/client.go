package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultStationListURL = "https://dd.weather.gc.ca/hydrometric/doc/hydrometric_StationList.csv"
	// DefaultReadingsURLTemplate is expanded with {prov} and {id}.
	DefaultReadingsURLTemplate = "https://dd.weather.gc.ca/hydrometric/csv/{prov}/hourly/{prov}_{id}_hourly_hydrometric.csv"
)

// FetchError reports a failure to retrieve a feed resource: transport errors,
// timeouts and non-2xx responses alike.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client downloads raw CSV payloads from the hydrometric data mart. It does
// no parsing and no retries.
type Client struct {
	httpClient  *http.Client
	stationsURL string
	readingsTpl string
	logger      *slog.Logger
}

// NewClient creates a feed client whose requests are bounded by timeout.
func NewClient(stationsURL, readingsTpl string, timeout time.Duration, logger *slog.Logger) *Client {
	if stationsURL == "" {
		stationsURL = DefaultStationListURL
	}
	if readingsTpl == "" {
		readingsTpl = DefaultReadingsURLTemplate
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		stationsURL: stationsURL,
		readingsTpl: readingsTpl,
		logger:      logger,
	}
}

// ReadingsURL expands the readings template for a station.
func (c *Client) ReadingsURL(stationID, province string) string {
	r := strings.NewReplacer("{prov}", province, "{id}", stationID)
	return r.Replace(c.readingsTpl)
}

// FetchStationCatalog returns the station list CSV.
func (c *Client) FetchStationCatalog(ctx context.Context) (string, error) {
	return c.get(ctx, c.stationsURL)
}

// FetchStationReadings returns the hourly readings CSV for one station.
func (c *Client) FetchStationReadings(ctx context.Context, stationID, province string) (string, error) {
	u := c.ReadingsURL(stationID, province)
	if strings.TrimSpace(province) == "" {
		return "", &FetchError{URL: u, Err: fmt.Errorf("station %s has no province", stationID)}
	}
	return c.get(ctx, u)
}

func (c *Client) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("feed fetched", "url", url, "bytes", len(body), "duration", time.Since(start))
	return string(body), nil
}
