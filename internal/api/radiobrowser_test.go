package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
)

func setupTestServer(handler http.HandlerFunc) (*httptest.Server, *DirectoryClient) {
	server := httptest.NewServer(handler)
	client := &DirectoryClient{
		client: resty.New().SetBaseURL(server.URL),
	}
	return server, client
}

func TestSearch(t *testing.T) {
	expected := []StationInfo{
		{UUID: "a1", Name: "Jazz FM", URL: "http://jazz.example.com/listen.pls", URLResolved: "http://jazz.example.com/live", Codec: "MP3", Bitrate: 128, Votes: 900},
		{UUID: "b2", Name: "Smooth Jazz", URL: "http://smooth.example.com/stream", Votes: 120},
	}

	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/stations/search" {
			t.Errorf("Expected path /json/stations/search, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("name") != "jazz" || q.Get("limit") != "5" || q.Get("hidebroken") != "true" || q.Get("order") != "votes" {
			t.Errorf("unexpected query %v", q)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(expected)
	})
	defer server.Close()

	stations, err := client.Search(context.Background(), "jazz", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(stations) != 2 {
		t.Fatalf("Search() returned %d stations, want 2", len(stations))
	}
	if stations[0].UUID != "a1" || stations[0].Bitrate != 128 || stations[0].Votes != 900 {
		t.Errorf("first station = %+v", stations[0])
	}
}

func TestSearchDefaultLimit(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "20" {
			t.Errorf("limit = %q, want 20", r.URL.Query().Get("limit"))
		}
		_, _ = w.Write([]byte("[]"))
	})
	defer server.Close()

	stations, err := client.Search(context.Background(), "x", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(stations) != 0 {
		t.Errorf("Search() = %v, want empty", stations)
	}
}

func TestTopVoted(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/stations/topvote/3" {
			t.Errorf("Expected path /json/stations/topvote/3, got %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"stationuuid":"x","name":"Top","url":"http://top.example.com","votes":42}]`))
	})
	defer server.Close()

	stations, err := client.TopVoted(context.Background(), 3)
	if err != nil {
		t.Fatalf("TopVoted() error = %v", err)
	}
	if len(stations) != 1 || stations[0].Name != "Top" || stations[0].Votes != 42 {
		t.Errorf("TopVoted() = %+v", stations)
	}
}

func TestSearchHTTPError(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer server.Close()

	_, err := client.Search(context.Background(), "jazz", 5)
	if err == nil {
		t.Error("Search() expected error for 500 response")
	}
}

func TestSearchInvalidJSON(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("invalid json"))
	})
	defer server.Close()

	_, err := client.Search(context.Background(), "jazz", 5)
	if err == nil {
		t.Error("Search() expected error for invalid JSON")
	}
}

func TestSearchCancelled(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Search(ctx, "jazz", 5); err == nil {
		t.Error("Search() expected error for cancelled context")
	}
}

func TestStationInfoStation(t *testing.T) {
	tests := []struct {
		name    string
		info    StationInfo
		wantURL string
	}{
		{"prefers resolved", StationInfo{Name: " A ", URL: "http://a/list.pls", URLResolved: "http://a/live"}, "http://a/live"},
		{"falls back to url", StationInfo{Name: "B", URL: "http://b/live"}, "http://b/live"},
		{"blank resolved", StationInfo{Name: "C", URL: "http://c/live", URLResolved: "  "}, "http://c/live"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.info.Station()
			if st.URL != tt.wantURL {
				t.Errorf("Station().URL = %q, want %q", st.URL, tt.wantURL)
			}
			if st.Name != "A" && st.Name != "B" && st.Name != "C" {
				t.Errorf("Station().Name = %q, want trimmed", st.Name)
			}
		})
	}
}

func TestNewDirectoryClient(t *testing.T) {
	client := NewDirectoryClient("", "Radio-CLI/test")

	if client == nil || client.client == nil {
		t.Fatal("NewDirectoryClient() returned nil client")
	}
	if client.client.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", client.client.BaseURL, DefaultBaseURL)
	}
	if client.client.Header.Get("User-Agent") != "Radio-CLI/test" {
		t.Errorf("User-Agent = %q", client.client.Header.Get("User-Agent"))
	}
}
