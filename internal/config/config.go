package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebovdev/radio-cli/internal/station"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	AppName        = "Radio CLI"
	AppDescription = "A terminal internet radio player"
	AppProjectURL  = "https://github.com/glebovdev/radio-cli"

	ConfigDir      = ".config/radio"
	ConfigFileName = "config.yml"
	DefaultVolume  = 70
	MinVolume      = 0
	MaxVolume      = 100
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/radio-cli/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type AudioConfig struct {
	SampleRate    int           `yaml:"sample_rate"`
	SpeakerBuffer time.Duration `yaml:"speaker_buffer"`
	BlockSize     int           `yaml:"block_size"`
	QueueBlocks   int           `yaml:"queue_blocks"`
	FadeIn        time.Duration `yaml:"fade_in"`
}

type StreamConfig struct {
	ReadAheadKB    int           `yaml:"read_ahead_kb"`
	PrebufferKB    int           `yaml:"prebuffer_kb"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	UserAgent      string        `yaml:"user_agent"`
}

type DirectoryConfig struct {
	BaseURL  string        `yaml:"base_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type Config struct {
	Volume      int               `yaml:"volume"`
	LastStation string            `yaml:"last_station"`
	Stations    []station.Station `yaml:"stations"`
	Audio       AudioConfig       `yaml:"audio"`
	Stream      StreamConfig      `yaml:"stream"`
	Directory   DirectoryConfig   `yaml:"directory"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Volume = ClampVolume(cfg.Volume)
	cfg.Stations = validStations(cfg.Stations)
	cfg.fillDefaults()

	return cfg, nil
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Volume:      DefaultVolume,
		LastStation: "",
		Stations: []station.Station{
			{Name: "BBC World Service", URL: "http://stream.live.vc.bbcmedia.co.uk/bbc_world_service"},
			{Name: "24/7 LoFi", URL: "http://usa9.fastcast4u.com/proxy/jamz?mp=/1"},
		},
		Audio: AudioConfig{
			SampleRate:    44100,
			SpeakerBuffer: 250 * time.Millisecond,
			BlockSize:     4096,
			QueueBlocks:   16,
			FadeIn:        50 * time.Millisecond,
		},
		Stream: StreamConfig{
			ReadAheadKB:    256,
			PrebufferKB:    16,
			ReadTimeout:    5 * time.Second,
			ConnectTimeout: 10 * time.Second,
			UserAgent:      fmt.Sprintf("Radio-CLI/%s", AppVersion),
		},
		Directory: DirectoryConfig{
			BaseURL:  "https://de1.api.radio-browser.info",
			CacheTTL: 24 * time.Hour,
		},
	}
}

// FindStation returns the configured station with the given name, or nil.
func (c *Config) FindStation(name string) *station.Station {
	return station.FindByName(c.Stations, name)
}

// Zero or negative tuning values in a user file fall back to defaults.
func (c *Config) fillDefaults() {
	def := DefaultConfig()

	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = def.Audio.SampleRate
	}
	if c.Audio.SpeakerBuffer <= 0 {
		c.Audio.SpeakerBuffer = def.Audio.SpeakerBuffer
	}
	if c.Audio.BlockSize <= 0 {
		c.Audio.BlockSize = def.Audio.BlockSize
	}
	if c.Audio.QueueBlocks <= 0 {
		c.Audio.QueueBlocks = def.Audio.QueueBlocks
	}
	if c.Audio.FadeIn < 0 {
		c.Audio.FadeIn = 0
	}
	if c.Stream.ReadAheadKB <= 0 {
		c.Stream.ReadAheadKB = def.Stream.ReadAheadKB
	}
	if c.Stream.PrebufferKB < 0 || c.Stream.PrebufferKB > c.Stream.ReadAheadKB {
		c.Stream.PrebufferKB = def.Stream.PrebufferKB
	}
	if c.Stream.ReadTimeout <= 0 {
		c.Stream.ReadTimeout = def.Stream.ReadTimeout
	}
	if c.Stream.ConnectTimeout <= 0 {
		c.Stream.ConnectTimeout = def.Stream.ConnectTimeout
	}
	if c.Stream.UserAgent == "" {
		c.Stream.UserAgent = def.Stream.UserAgent
	}
	if c.Directory.BaseURL == "" {
		c.Directory.BaseURL = def.Directory.BaseURL
	}
	if c.Directory.CacheTTL <= 0 {
		c.Directory.CacheTTL = def.Directory.CacheTTL
	}
}

func validStations(stations []station.Station) []station.Station {
	valid := make([]station.Station, 0, len(stations))
	for _, st := range stations {
		if err := st.Validate(); err != nil {
			log.Warn().Err(err).Str("station", st.Name).Msg("Skipping invalid station in config")
			continue
		}
		valid = append(valid, st)
	}
	return valid
}
