// Package main is the entry point for the Resonata player core.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/resonata-audio/resonata/internal/config"
	"github.com/resonata-audio/resonata/internal/domain/artwork"
	"github.com/resonata-audio/resonata/internal/domain/importer"
	"github.com/resonata-audio/resonata/internal/domain/library"
	"github.com/resonata-audio/resonata/internal/domain/playback"
	"github.com/resonata-audio/resonata/internal/domain/track"
	"github.com/resonata-audio/resonata/internal/events"
	"github.com/resonata-audio/resonata/internal/infra/access"
	"github.com/resonata-audio/resonata/internal/infra/audio"
	"github.com/resonata-audio/resonata/internal/infra/frameextract"
	"github.com/resonata-audio/resonata/internal/infra/nowplaying"
	"github.com/resonata-audio/resonata/internal/infra/persist"
	"github.com/resonata-audio/resonata/internal/infra/scancache"
	"github.com/resonata-audio/resonata/internal/version"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug || cfg.Log.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	versionInfo := version.GetInfo()
	log.Info().Msgf("%s starting", versionInfo.String())

	libraryPath := cfg.Library.Path
	if libraryPath == "" {
		libraryPath = defaultLibraryPath()
	}
	log.Info().
		Str("library", libraryPath).
		Float64("volume", cfg.Playback.Volume).
		Msg("Configuration")

	bus := events.NewBus()
	provider := access.Passthrough{}
	sink := persist.NewStore(libraryPath)

	store := library.NewStore(sink, provider, bus,
		library.WithSaveDebounce(cfg.Library.GetSaveDebounce()))
	defer store.Close()

	prober := audio.NewProber()
	extractor := track.NewExtractor(provider, prober,
		track.WithFrameGrabber(frameextract.NewGrabber()))

	importOpts := []importer.PipelineOption{
		importer.WithBatchSize(cfg.Import.BatchSize),
		importer.WithBatchPause(cfg.Import.GetBatchPause()),
		importer.WithCompletionHold(cfg.Import.GetCompletionHold()),
	}
	if cfg.Cache.ScanDBPath != "" {
		scanDB := scancache.NewDB(cfg.Cache.ScanDBPath)
		if err := scanDB.Open(); err != nil {
			log.Warn().Err(err).Msg("Scan cache unavailable")
		} else {
			defer scanDB.Close()
			importOpts = append(importOpts, importer.WithMetadataCache(scanDB))
		}
	}
	pipeline := importer.NewPipeline(extractor, store, provider, bus, importOpts...)

	artCache := artwork.NewCache(cfg.Cache.ArtworkMaxEntries)
	player := playback.NewPlayer(audio.NewBeepEngine(), provider, artCache, nowplaying.LogSurface{}, bus)
	player.SetVolume(cfg.Playback.Volume)

	cancelProgress := bus.Subscribe(func(ev events.Event) {
		switch ev.Kind {
		case events.KindImportProgress:
			p := ev.Payload.(importer.Progress)
			if p.Importing {
				log.Info().
					Int("processed", p.ProcessedFiles).
					Int("total", p.TotalFiles).
					Str("file", p.CurrentFileLabel).
					Msg("Importing")
			}
		case events.KindImportCompleted:
			c := ev.Payload.(importer.Completion)
			log.Info().Msg(c.Message)
		}
	})
	defer cancelProgress()

	// Graceful shutdown: flush the library and clear now-playing
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		player.Stop()
		if err := store.SavePlaylistsNow(); err != nil {
			log.Error().Err(err).Msg("Final library save failed")
		}
		os.Exit(0)
	}()

	runConsole(store, pipeline, player)

	player.Stop()
}

// runConsole reads commands from stdin until EOF or quit.
func runConsole(store *library.Store, pipeline *importer.Pipeline, player *playback.Player) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("resonata ready; type 'help' for commands")

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "help":
			fmt.Println("commands: lists, select <n>, new <name>, delete <n>, import <path>, play [n], pause, resume, stop, next, prev, shuffle, repeat, vol <0..1>, quit")

		case "lists":
			for i, p := range store.Playlists() {
				marker := " "
				if store.Selected() == p {
					marker = "*"
				}
				fmt.Printf("%s %d: %s (%d tracks)\n", marker, i, p.Name, p.Len())
			}

		case "select":
			withIndexedPlaylist(store, args, func(id string) { store.SelectPlaylist(id) })

		case "new":
			if len(args) == 0 {
				fmt.Println("usage: new <name>")
				continue
			}
			store.CreatePlaylist(strings.Join(args, " "))

		case "delete":
			withIndexedPlaylist(store, args, func(id string) { store.DeletePlaylist(id) })

		case "import":
			if len(args) == 0 {
				fmt.Println("usage: import <file-or-folder>")
				continue
			}
			target := store.Selected()
			if target == nil {
				fmt.Println("no playlist selected")
				continue
			}
			path := strings.Join(args, " ")
			info, err := os.Stat(path)
			if err != nil {
				fmt.Println("cannot stat:", err)
				continue
			}
			if info.IsDir() {
				err = pipeline.ImportFolder(path, target.ID)
			} else {
				err = pipeline.ImportFiles([]string{path}, target.ID)
			}
			if err != nil {
				fmt.Println(err)
			}

		case "play":
			target := store.Selected()
			if target == nil || target.Len() == 0 {
				fmt.Println("nothing to play")
				continue
			}
			if len(args) == 0 {
				player.PlayFirstTrack(target)
				continue
			}
			idx, err := strconv.Atoi(args[0])
			if err != nil || target.TrackAt(idx) == nil {
				fmt.Println("bad track index")
				continue
			}
			if err := player.Play(*target.TrackAt(idx), target); err != nil {
				fmt.Println(err)
			}

		case "pause":
			player.Pause()
		case "resume":
			player.Resume()
		case "stop":
			player.Stop()
		case "next":
			player.NextTrack()
		case "prev":
			player.PreviousTrack()
		case "shuffle":
			fmt.Println("shuffle:", player.ToggleShuffle())
		case "repeat":
			fmt.Println("repeat:", player.ToggleRepeat())

		case "vol":
			if len(args) == 0 {
				fmt.Println("volume:", player.Volume())
				continue
			}
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				fmt.Println("usage: vol <0..1>")
				continue
			}
			player.SetVolume(v)

		case "quit", "exit":
			return

		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}

func withIndexedPlaylist(store *library.Store, args []string, fn func(id string)) {
	if len(args) == 0 {
		fmt.Println("missing playlist index")
		return
	}
	idx, err := strconv.Atoi(args[0])
	lists := store.Playlists()
	if err != nil || idx < 0 || idx >= len(lists) {
		fmt.Println("bad playlist index")
		return
	}
	fn(lists[idx].ID)
}

// defaultLibraryPath places the playlist document in the per-user config
// directory, falling back to the working directory.
func defaultLibraryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "playlists.json"
	}
	return filepath.Join(dir, "resonata", "playlists.json")
}
