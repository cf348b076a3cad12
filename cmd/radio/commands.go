package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/glebovdev/radio-cli/internal/api"
	"github.com/glebovdev/radio-cli/internal/cache"
	"github.com/glebovdev/radio-cli/internal/config"
	"github.com/glebovdev/radio-cli/internal/console"
	"github.com/glebovdev/radio-cli/internal/player"
	"github.com/glebovdev/radio-cli/internal/service"
	"github.com/glebovdev/radio-cli/internal/sink"
	"github.com/glebovdev/radio-cli/internal/stream"
	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var searchLimit int

var playCmd = &cobra.Command{
	Use:   "play [station number | name | url]",
	Short: "Open the player console, optionally starting a station",
	RunE:  runPlay,
}

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "List configured stations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.NewStationService(loadConfig().Stations, nil, nil)
		if svc.StationCount() == 0 {
			fmt.Println("No stations configured")
			return nil
		}
		for i, st := range svc.Stations() {
			fmt.Printf("%2d. %-30s %s\n", i+1, st.Name, st.URL)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Search the radio-browser.info station directory",
	Long:  "Search the radio-browser.info station directory by name. Without a term the most voted stations are listed.",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		svc := newStationService(cfg)

		var (
			results []api.StationInfo
			err     error
		)
		if term := strings.TrimSpace(strings.Join(args, " ")); term != "" {
			results, err = svc.Search(cmd.Context(), term, searchLimit)
		} else {
			results, err = svc.TopVoted(cmd.Context(), searchLimit)
		}
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No stations found")
			return nil
		}
		for _, info := range results {
			fmt.Printf("%-40s %-6s %4d kbps %6d votes  %s\n",
				strings.TrimSpace(info.Name), info.Codec, info.Bitrate, info.Votes, info.StreamURL())
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", api.DefaultLimit, "Maximum number of results")
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
	}
	return cfg
}

func newStationService(cfg *config.Config) *service.StationService {
	directory := api.NewDirectoryClient(cfg.Directory.BaseURL, cfg.Stream.UserAgent)

	responses, err := cache.NewCache(cfg.Directory.CacheTTL)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize response cache, searches will not be cached")
		responses = nil
	}

	return service.NewStationService(cfg.Stations, directory, responses)
}

func newPlayer(cfg *config.Config, noAudio bool) *player.Player {
	src := stream.NewSource(stream.Config{
		ReadAhead:      cfg.Stream.ReadAheadKB * 1024,
		Prebuffer:      cfg.Stream.PrebufferKB * 1024,
		ReadTimeout:    cfg.Stream.ReadTimeout,
		ConnectTimeout: cfg.Stream.ConnectTimeout,
		UserAgent:      cfg.Stream.UserAgent,
	})

	var out sink.Output
	if noAudio {
		capture := sink.NewCaptureOutput()
		capture.Pace = true
		capture.Discard = true
		out = capture
	} else {
		out = sink.NewSpeakerOutput(cfg.Audio.SpeakerBuffer)
	}

	engine := player.NewEngine(src, out, player.Config{
		BlockSize: cfg.Audio.BlockSize,
		Sink: sink.Config{
			SampleRate:  beep.SampleRate(cfg.Audio.SampleRate),
			QueueBlocks: cfg.Audio.QueueBlocks,
			FadeIn:      cfg.Audio.FadeIn,
		},
	})

	return player.NewPlayer(engine, cfg.Volume)
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	svc := newStationService(cfg)
	p := newPlayer(cfg, noAudioFlag)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shell := console.New(p, svc, os.Stdout)
	shell.OnVolume = func(percent int) {
		cfg.Volume = percent
	}

	fmt.Printf("%s v%s. Type \"help\" for commands.\n", config.AppName, config.AppVersion)

	if len(args) > 0 {
		st, err := svc.Resolve(strings.Join(args, " "))
		if err != nil {
			return err
		}
		shell.Play(st)
	} else if cfg.LastStation != "" {
		fmt.Printf("Last station: %s (\"play %s\" to resume)\n", cfg.LastStation, cfg.LastStation)
	}

	err := shell.Run(ctx, os.Stdin)

	log.Debug().Msg("Shutting down player")
	p.Shutdown()

	if st := shell.Playing(); st.Name != "" {
		cfg.LastStation = st.Name
	}
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("Failed to save config")
	}

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}
