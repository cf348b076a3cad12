package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/glebovdev/radio-cli/internal/api"
	"github.com/glebovdev/radio-cli/internal/cache"
	"github.com/glebovdev/radio-cli/internal/station"
)

type fakeDirectory struct {
	results []api.StationInfo
	err     error
	calls   atomic.Int32
}

func (f *fakeDirectory) Search(ctx context.Context, name string, limit int) ([]api.StationInfo, error) {
	f.calls.Add(1)
	return f.results, f.err
}

func (f *fakeDirectory) TopVoted(ctx context.Context, limit int) ([]api.StationInfo, error) {
	f.calls.Add(1)
	return f.results, f.err
}

func testStations() []station.Station {
	return []station.Station{
		{Name: "Groove Salad", URL: "http://ice.example.com/groovesalad"},
		{Name: "Drone Zone", URL: "http://ice.example.com/dronezone"},
		{Name: "Lush", URL: "https://ice.example.com/lush"},
	}
}

func TestResolve(t *testing.T) {
	svc := NewStationService(testStations(), nil, nil)

	tests := []struct {
		name    string
		input   string
		wantURL string
		wantErr error
	}{
		{"by index", "2", "http://ice.example.com/dronezone", nil},
		{"by index padded", "  1 ", "http://ice.example.com/groovesalad", nil},
		{"by name", "lush", "https://ice.example.com/lush", nil},
		{"by url", "http://other.example.com/live", "http://other.example.com/live", nil},
		{"index too high", "4", "", ErrStationNotFound},
		{"index zero", "0", "", ErrStationNotFound},
		{"unknown name", "Secret Agent", "", ErrStationNotFound},
		{"empty", "", "", ErrStationNotFound},
		{"bad url", "http://", "", station.ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := svc.Resolve(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Resolve(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.input, err)
			}
			if st.URL != tt.wantURL {
				t.Errorf("Resolve(%q).URL = %q, want %q", tt.input, st.URL, tt.wantURL)
			}
		})
	}
}

func TestResolveFromSearchResults(t *testing.T) {
	dir := &fakeDirectory{results: []api.StationInfo{
		{Name: "Jazz FM", URL: "http://jazz.example.com/list.pls", URLResolved: "http://jazz.example.com/live", Votes: 10},
	}}
	svc := NewStationService(testStations(), dir, nil)

	if _, err := svc.Resolve("jazz fm"); !errors.Is(err, ErrStationNotFound) {
		t.Fatalf("Resolve() before search error = %v, want ErrStationNotFound", err)
	}

	if _, err := svc.Search(context.Background(), "jazz", 5); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	st, err := svc.Resolve("jazz fm")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if st.URL != "http://jazz.example.com/live" {
		t.Errorf("Resolve().URL = %q, want resolved URL", st.URL)
	}
}

func TestSearchSortsAndFilters(t *testing.T) {
	dir := &fakeDirectory{results: []api.StationInfo{
		{UUID: "low", Name: "Low", URL: "http://a.example.com", Votes: 1},
		{UUID: "broken", Name: "Broken", URL: "ftp://b.example.com", Votes: 1000},
		{UUID: "high", Name: "High", URL: "http://c.example.com", Votes: 500},
		{UUID: "mid", Name: "Mid", URL: "http://d.example.com", Votes: 50},
		{UUID: "mid2", Name: "Mid 2", URL: "http://e.example.com", Votes: 50},
	}}
	svc := NewStationService(nil, dir, nil)

	results, err := svc.Search(context.Background(), "x", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	want := []string{"high", "mid", "mid2", "low"}
	if len(results) != len(want) {
		t.Fatalf("Search() returned %d results, want %d", len(results), len(want))
	}
	for i, id := range want {
		if results[i].UUID != id {
			t.Errorf("results[%d].UUID = %q, want %q", i, results[i].UUID, id)
		}
	}

	results[0].Name = "mutated"
	if svc.Results()[0].Name != "High" {
		t.Error("Search() should return a copy of the stored results")
	}
}

func TestSearchUsesCache(t *testing.T) {
	dir := &fakeDirectory{results: []api.StationInfo{
		{UUID: "a", Name: "A", URL: "http://a.example.com", Votes: 3},
	}}
	responses := cache.NewCacheAt(t.TempDir(), 0)
	svc := NewStationService(nil, dir, responses)

	for i := 0; i < 3; i++ {
		results, err := svc.Search(context.Background(), "Ambient", 5)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 || results[0].UUID != "a" {
			t.Fatalf("Search() = %+v", results)
		}
	}

	if got := dir.calls.Load(); got != 1 {
		t.Errorf("directory called %d times, want 1", got)
	}

	// Case differences share a cache entry; a different limit does not.
	if _, err := svc.Search(context.Background(), "ambient", 5); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Search(context.Background(), "ambient", 6); err != nil {
		t.Fatal(err)
	}
	if got := dir.calls.Load(); got != 2 {
		t.Errorf("directory called %d times, want 2", got)
	}
}

func TestSearchError(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("boom")}
	svc := NewStationService(nil, dir, cache.NewCacheAt(t.TempDir(), 0))

	if _, err := svc.Search(context.Background(), "x", 5); err == nil {
		t.Error("Search() expected error")
	}
	if len(svc.Results()) != 0 {
		t.Error("failed search should not replace results")
	}
}

func TestNoDirectory(t *testing.T) {
	svc := NewStationService(testStations(), nil, nil)

	if _, err := svc.Search(context.Background(), "x", 5); !errors.Is(err, ErrNoDirectory) {
		t.Errorf("Search() error = %v, want ErrNoDirectory", err)
	}
	if _, err := svc.TopVoted(context.Background(), 5); !errors.Is(err, ErrNoDirectory) {
		t.Errorf("TopVoted() error = %v, want ErrNoDirectory", err)
	}
}

func TestTopVotedWithDirectoryClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/stations/topvote/2" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]api.StationInfo{
			{UUID: "b", Name: "B", URL: "http://b.example.com", Votes: 2},
			{UUID: "a", Name: "A", URL: "http://a.example.com", Votes: 9},
		})
	}))
	defer server.Close()

	svc := NewStationService(nil, api.NewDirectoryClient(server.URL, "test"), nil)

	results, err := svc.TopVoted(context.Background(), 2)
	if err != nil {
		t.Fatalf("TopVoted() error = %v", err)
	}
	if len(results) != 2 || results[0].UUID != "a" {
		t.Errorf("TopVoted() = %+v, want a first", results)
	}
}

func TestGetStation(t *testing.T) {
	svc := NewStationService(testStations(), nil, nil)

	tests := []struct {
		name     string
		index    int
		wantName string
		wantNil  bool
	}{
		{"first", 0, "Groove Salad", false},
		{"last", 2, "Lush", false},
		{"negative", -1, "", true},
		{"out of bounds", 3, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := svc.GetStation(tt.index)
			if tt.wantNil {
				if st != nil {
					t.Errorf("GetStation(%d) = %v, want nil", tt.index, st)
				}
				return
			}
			if st == nil || st.Name != tt.wantName {
				t.Errorf("GetStation(%d) = %v, want %q", tt.index, st, tt.wantName)
			}
		})
	}
}

func TestStationsReturnsCopy(t *testing.T) {
	input := testStations()
	svc := NewStationService(input, nil, nil)

	input[0].Name = "changed by caller"
	list := svc.Stations()
	if list[0].Name != "Groove Salad" {
		t.Error("NewStationService should copy its input")
	}

	list[1].Name = "changed"
	if svc.GetStation(1).Name != "Drone Zone" {
		t.Error("Stations() should return a copy")
	}
	if svc.StationCount() != 3 {
		t.Errorf("StationCount() = %d, want 3", svc.StationCount())
	}
}
