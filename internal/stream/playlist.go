package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
)

var ErrEmptyPlaylist = errors.New("no valid stream URL found in playlist")

var playlistTypes = map[string]bool{
	"audio/x-scpls":         true,
	"audio/scpls":           true,
	"application/pls+xml":   true,
	"audio/x-mpegurl":       true,
	"audio/mpegurl":         true,
	"application/x-mpegurl": true,
}

// isPlaylist reports whether a response should be resolved as a PLS or M3U
// playlist rather than played. HLS (.m3u8) is not a playlist in this sense.
func isPlaylist(contentType, rawURL string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && playlistTypes[strings.ToLower(mt)] {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".pls", ".m3u":
		return true
	}
	return false
}

// parsePlaylist reads PLS ("FileN=" entries) or M3U (one URL per non-comment
// line) and returns absolute entry URLs in file order.
func parsePlaylist(r io.Reader, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid playlist URL: %w", err)
	}

	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "[") {
			continue
		}

		entry := line
		if key, value, ok := strings.Cut(line, "="); ok && !strings.ContainsAny(key, "/:?.") {
			// PLS key; only FileN carries a location
			if !strings.HasPrefix(strings.ToLower(key), "file") {
				continue
			}
			entry = strings.TrimSpace(value)
		}
		if entry == "" {
			continue
		}

		ref, err := url.Parse(entry)
		if err != nil {
			continue
		}
		urls = append(urls, base.ResolveReference(ref).String())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading playlist: %w", err)
	}

	if len(urls) == 0 {
		return nil, ErrEmptyPlaylist
	}

	return urls, nil
}
