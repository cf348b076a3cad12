// Package stream opens live HTTP(S) audio streams and exposes them as buffered byte streams.
package stream

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/glebovdev/radio-cli/internal/station"
	"github.com/rs/zerolog/log"
)

const (
	NetworkReadSize     = 4096
	DefaultReadAhead    = 256 * 1024
	DefaultPrebuffer    = 16 * 1024
	DefaultReadTimeout  = 5 * time.Second
	DefaultDialTimeout  = 10 * time.Second
	MaxICYMetadataBytes = 4080
	maxPlaylistBytes    = 64 * 1024
)

type Config struct {
	ReadAhead      int
	Prebuffer      int
	ReadTimeout    time.Duration
	ConnectTimeout time.Duration
	UserAgent      string
}

func DefaultConfig() Config {
	return Config{
		ReadAhead:      DefaultReadAhead,
		Prebuffer:      DefaultPrebuffer,
		ReadTimeout:    DefaultReadTimeout,
		ConnectTimeout: DefaultDialTimeout,
		UserAgent:      "Radio-CLI",
	}
}

// Source opens streams. It is safe for concurrent use.
type Source struct {
	cfg    Config
	client *http.Client
}

func NewSource(cfg Config) *Source {
	def := DefaultConfig()
	if cfg.ReadAhead <= 0 {
		cfg.ReadAhead = def.ReadAhead
	}
	if cfg.Prebuffer < 0 {
		cfg.Prebuffer = 0
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	httpClient := &http.Client{
		Timeout: 0, // streams are long-lived
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.ConnectTimeout,
			}).DialContext,
			TLSHandshakeTimeout:   cfg.ConnectTimeout,
			ResponseHeaderTimeout: cfg.ConnectTimeout + cfg.ReadTimeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			DisableCompression:    true,
		},
	}

	return &Source{cfg: cfg, client: httpClient}
}

// Open connects to rawURL and starts buffering its body. Playlist responses
// (PLS/M3U) are resolved one level deep and their entries tried in order.
// Context cancellation is returned as ctx.Err(), unwrapped.
func (s *Source) Open(ctx context.Context, rawURL string) (*Stream, error) {
	return s.open(ctx, rawURL, 0)
}

func (s *Source) open(ctx context.Context, rawURL string, depth int) (*Stream, error) {
	if err := station.ValidateURL(rawURL); err != nil {
		return nil, &Error{Kind: KindConnect, URL: rawURL, Err: err}
	}

	log.Debug().Msgf("Connecting to stream: %s", rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindConnect, URL: rawURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Icy-MetaData", "1")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindConnect, URL: rawURL, Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	log.Debug().Msgf("Stream response status: %d, Content-Type: %s", resp.StatusCode, contentType)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &Error{Kind: KindStatus, URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if depth == 0 && isPlaylist(contentType, rawURL) {
		entries, err := parsePlaylist(io.LimitReader(resp.Body, maxPlaylistBytes), rawURL)
		resp.Body.Close()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &Error{Kind: KindConnect, URL: rawURL, Err: err}
		}

		log.Debug().Msgf("Found %d stream URLs in playlist", len(entries))

		var lastErr error
		for i, entry := range entries {
			log.Debug().Msgf("Trying playlist entry %d/%d: %s", i+1, len(entries), entry)
			st, err := s.open(ctx, entry, depth+1)
			if err == nil {
				return st, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Msgf("Playlist entry failed: %s", entry)
			lastErr = err
		}
		return nil, lastErr
	}

	return newStream(ctx, resp, rawURL, s.cfg), nil
}
