// Package station defines the radio station model shared by config, directory and player.
package station

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrEmptyName  = errors.New("station name is empty")
	ErrInvalidURL = errors.New("invalid stream URL")
)

// Station is a named stream URL. The playback engine only ever reads URL.
type Station struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

func (s Station) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.URL)
}

func (s Station) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	return ValidateURL(s.URL)
}

// ValidateURL checks that raw is an absolute http or https URL with a host.
// Nothing beyond syntax is checked.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// LooksLikeURL reports whether s should be treated as a URL rather than a station name.
func LooksLikeURL(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// FindByName returns the first station whose name matches (case-insensitive), or nil.
func FindByName(stations []Station, name string) *Station {
	name = strings.TrimSpace(name)
	for i := range stations {
		if strings.EqualFold(stations[i].Name, name) {
			st := stations[i]
			return &st
		}
	}
	return nil
}
