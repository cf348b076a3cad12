// Package api provides the HTTP client for the radio-browser.info station directory.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glebovdev/radio-cli/internal/station"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "https://de1.api.radio-browser.info"
	DefaultLimit   = 20
	requestTimeout = 30 * time.Second
)

// StationInfo is one entry of the directory's station list.
type StationInfo struct {
	UUID        string `json:"stationuuid"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	URLResolved string `json:"url_resolved"`
	Codec       string `json:"codec"`
	Bitrate     int    `json:"bitrate"`
	Votes       int    `json:"votes"`
	Country     string `json:"country"`
	Tags        string `json:"tags"`
	LastCheckOK int    `json:"lastcheckok"`
}

// StreamURL prefers the directory's resolved URL, which skips playlist indirection.
func (s StationInfo) StreamURL() string {
	if u := strings.TrimSpace(s.URLResolved); u != "" {
		return u
	}
	return strings.TrimSpace(s.URL)
}

func (s StationInfo) Station() station.Station {
	return station.Station{Name: strings.TrimSpace(s.Name), URL: s.StreamURL()}
}

// DirectoryClient is the HTTP client for the radio-browser API.
type DirectoryClient struct {
	client *resty.Client
}

func NewDirectoryClient(baseURL, userAgent string) *DirectoryClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout)
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	return &DirectoryClient{client: client}
}

// Search finds working stations whose name contains name, most voted first.
func (c *DirectoryClient) Search(ctx context.Context, name string, limit int) ([]StationInfo, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"name":       name,
			"limit":      strconv.Itoa(limit),
			"hidebroken": "true",
			"order":      "votes",
			"reverse":    "true",
		}).
		Get("/json/stations/search")
	if err != nil {
		return nil, fmt.Errorf("failed to search stations: %w", err)
	}

	return decodeStations(resp)
}

// TopVoted returns the directory's most voted stations.
func (c *DirectoryClient) TopVoted(ctx context.Context, limit int) ([]StationInfo, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	resp, err := c.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/json/stations/topvote/%d", limit))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch top stations: %w", err)
	}

	return decodeStations(resp)
}

func decodeStations(resp *resty.Response) ([]StationInfo, error) {
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("api returned status %d: %s", resp.StatusCode(), resp.Status())
	}

	var stations []StationInfo
	if err := json.Unmarshal(resp.Body(), &stations); err != nil {
		return nil, fmt.Errorf("failed to parse stations response: %w", err)
	}

	return stations, nil
}
