// Package service resolves what the user asked to play into a station, drawing
// on the configured station list and the online directory.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/glebovdev/radio-cli/internal/api"
	"github.com/glebovdev/radio-cli/internal/cache"
	"github.com/glebovdev/radio-cli/internal/station"
	"github.com/rs/zerolog/log"
)

var (
	ErrStationNotFound = errors.New("station not found")
	ErrNoDirectory     = errors.New("station directory is not configured")
)

// Directory looks stations up online. *api.DirectoryClient implements it.
type Directory interface {
	Search(ctx context.Context, name string, limit int) ([]api.StationInfo, error)
	TopVoted(ctx context.Context, limit int) ([]api.StationInfo, error)
}

// StationService owns the configured stations and the latest directory results.
type StationService struct {
	directory Directory
	cache     *cache.Cache

	mu       sync.RWMutex
	stations []station.Station
	results  []api.StationInfo
}

// NewStationService creates a service over the configured stations. directory
// and responses may be nil; without a directory, Search and TopVoted fail and
// without a cache every lookup goes to the network.
func NewStationService(stations []station.Station, directory Directory, responses *cache.Cache) *StationService {
	if responses != nil {
		go func() {
			if err := responses.CleanExpired(); err != nil {
				log.Debug().Err(err).Msg("Failed to clean expired cache")
			}
		}()
	}

	own := make([]station.Station, len(stations))
	copy(own, stations)

	return &StationService{
		directory: directory,
		cache:     responses,
		stations:  own,
	}
}

// Stations returns a copy of the configured stations.
func (s *StationService) Stations() []station.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]station.Station, len(s.stations))
	copy(result, s.stations)
	return result
}

func (s *StationService) StationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stations)
}

// GetStation returns a copy of the configured station at index, or nil if the
// index is out of bounds.
func (s *StationService) GetStation(index int) *station.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.stations) {
		return nil
	}
	st := s.stations[index]
	return &st
}

// Results returns a copy of the latest directory results.
func (s *StationService) Results() []api.StationInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]api.StationInfo, len(s.results))
	copy(result, s.results)
	return result
}

// Resolve maps user input to a station. Input is tried as a URL, then as a
// 1-based position in the configured list, then as a configured station name
// and finally as the name of a station from the latest directory results.
func (s *StationService) Resolve(input string) (station.Station, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return station.Station{}, fmt.Errorf("%w: empty input", ErrStationNotFound)
	}

	if station.LooksLikeURL(input) {
		if err := station.ValidateURL(input); err != nil {
			return station.Station{}, err
		}
		return station.Station{Name: input, URL: input}, nil
	}

	if n, err := strconv.Atoi(input); err == nil {
		if st := s.GetStation(n - 1); st != nil {
			return *st, nil
		}
		return station.Station{}, fmt.Errorf("%w: no station #%d", ErrStationNotFound, n)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if st := station.FindByName(s.stations, input); st != nil {
		return *st, nil
	}
	for _, info := range s.results {
		if strings.EqualFold(strings.TrimSpace(info.Name), input) {
			return info.Station(), nil
		}
	}

	return station.Station{}, fmt.Errorf("%w: %q", ErrStationNotFound, input)
}

// Search queries the directory by name, most voted first. Cached responses are
// served without a request.
func (s *StationService) Search(ctx context.Context, query string, limit int) ([]api.StationInfo, error) {
	query = strings.TrimSpace(query)
	key := fmt.Sprintf("search:%s:%d", strings.ToLower(query), limit)
	return s.lookup(key, func() ([]api.StationInfo, error) {
		if s.directory == nil {
			return nil, ErrNoDirectory
		}
		return s.directory.Search(ctx, query, limit)
	})
}

// TopVoted returns the directory's most popular stations.
func (s *StationService) TopVoted(ctx context.Context, limit int) ([]api.StationInfo, error) {
	key := fmt.Sprintf("topvote:%d", limit)
	return s.lookup(key, func() ([]api.StationInfo, error) {
		if s.directory == nil {
			return nil, ErrNoDirectory
		}
		return s.directory.TopVoted(ctx, limit)
	})
}

func (s *StationService) lookup(key string, fetch func() ([]api.StationInfo, error)) ([]api.StationInfo, error) {
	var results []api.StationInfo

	if s.cache != nil && s.cache.Get(key, &results) {
		log.Debug().Str("key", key).Msg("Directory response loaded from cache")
	} else {
		fetched, err := fetch()
		if err != nil {
			return nil, err
		}
		results = playable(fetched)
		sortByVotes(results)

		if s.cache != nil {
			if err := s.cache.Put(key, results); err != nil {
				log.Debug().Err(err).Str("key", key).Msg("Failed to cache directory response")
			}
		}
	}

	s.mu.Lock()
	s.results = results
	s.mu.Unlock()

	out := make([]api.StationInfo, len(results))
	copy(out, results)
	return out, nil
}

// playable drops entries without a usable stream URL.
func playable(infos []api.StationInfo) []api.StationInfo {
	kept := make([]api.StationInfo, 0, len(infos))
	for _, info := range infos {
		if err := station.ValidateURL(info.StreamURL()); err != nil {
			log.Debug().Str("station", info.Name).Err(err).Msg("Skipping directory entry")
			continue
		}
		kept = append(kept, info)
	}
	return kept
}

func sortByVotes(infos []api.StationInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Votes > infos[j].Votes
	})
}
