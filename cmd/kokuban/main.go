// Package main is the Kokuban CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kokuban/internal/capture"
	"github.com/hyperjump/kokuban/internal/config"
	"github.com/hyperjump/kokuban/internal/models"
	"github.com/hyperjump/kokuban/internal/notes"
	"github.com/hyperjump/kokuban/internal/notesearch"
	"github.com/hyperjump/kokuban/internal/objectstore"
	"github.com/hyperjump/kokuban/internal/server"
	"github.com/hyperjump/kokuban/internal/speech"
	"github.com/hyperjump/kokuban/internal/storage"
	"github.com/hyperjump/kokuban/internal/vision"
	"github.com/hyperjump/kokuban/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kokuban/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used instead.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "capture":
		runCapture()
	case "room":
		runRoom()
	case "version", "--version", "-v":
		fmt.Printf("kokuban version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(components.Notes, components.Speech, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runCapture() {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	room := fs.String("room", "", "room code to upload captures to (overrides config)")
	cameraURL := fs.String("camera", "", "camera snapshot or MJPEG stream URL (overrides config)")
	watchDir := fs.String("watch-dir", "", "watch a directory for image files instead of polling a camera")
	backendURL := fs.String("backend", "", "backend base URL (overrides config)")
	interval := fs.Int("interval", 0, "seconds between captures (overrides config)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	capCfg := cfg.Capture
	if *room != "" {
		capCfg.RoomCode = *room
	}
	if *cameraURL != "" {
		capCfg.CameraURL = *cameraURL
	}
	if *watchDir != "" {
		capCfg.WatchDir = *watchDir
	}
	if *backendURL != "" {
		capCfg.BackendURL = *backendURL
	}
	if *interval > 0 {
		capCfg.IntervalSeconds = *interval
	}
	if capCfg.RoomCode == "" {
		fmt.Println("A room code is required: --room <code>")
		os.Exit(1)
	}
	if capCfg.WatchDir == "" && capCfg.CameraURL == "" {
		fmt.Println("Either --camera <url> or --watch-dir <dir> is required")
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	uploader := capture.NewUploader(capCfg.BackendURL, capCfg.RoomCode)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if capCfg.WatchDir != "" {
		watcher := capture.NewWatcher(capCfg.WatchDir, uploader, logger)
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Fatal("Watcher failed", zap.Error(err))
		}
		return
	}

	camera := capture.NewCamera(capCfg.CameraURL, capCfg.CameraUsername, capCfg.CameraPassword)
	poller := capture.NewPoller(camera, uploader,
		time.Duration(capCfg.IntervalSeconds)*time.Second, logger)
	if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("Poller failed", zap.Error(err))
	}
}

func runRoom() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kokuban room <create|list> [flags]")
		fmt.Println("  kokuban room create [--name <name>]   Create a room and print its join code")
		fmt.Println("  kokuban room list                     List rooms")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("room", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	name := fs.String("name", "", "room name (create only)")
	_ = fs.Parse(os.Args[3:])

	switch sub {
	case "create":
		body, _ := json.Marshal(map[string]string{"name": *name})
		resp, err := http.Post(*serverURL+"/api/v1/rooms", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Create failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var room models.Room
		if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Room created: %s (code %s)\n", room.ID, room.Code)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/rooms")
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var rooms []models.Room
		if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, r := range rooms {
			fmt.Printf("%s  %-20s  %d notes\n", r.Code, r.Name, r.NoteCount)
		}
	default:
		fmt.Printf("Unknown room subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Store  storage.Store
	Index  *notesearch.Index
	Notes  *notes.Service
	Speech server.Synthesizer
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	index, err := notesearch.NewIndex(cfg.Storage.SearchIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize search index: %w", err)
	}

	objects, err := objectstore.Open(cfg.ObjectStore)
	if err != nil {
		_ = store.Close()
		_ = index.Close()
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	visionClient := vision.NewClient(vision.Config{
		APIKey:         cfg.Vision.APIKey,
		BaseURL:        cfg.Vision.BaseURL,
		Model:          cfg.Vision.Model,
		ImageModel:     cfg.Vision.ImageModel,
		TimeoutSeconds: cfg.Vision.TimeoutSeconds,
	})
	orch := notes.NewOrchestrator(visionClient, logger)
	svc := notes.NewService(store, index, objects, orch, logger,
		cfg.Vision.GenerateDiagramsOrDefault())

	var speechSvc server.Synthesizer
	if cfg.Speech.APIKey != "" {
		speechSvc = speech.NewService(visionClient, cfg.Speech, logger)
	} else {
		logger.Info("speech disabled: no api key configured")
	}

	return &Components{
		Store:  store,
		Index:  index,
		Notes:  svc,
		Speech: speechSvc,
	}, nil
}

func printUsage() {
	fmt.Println(`kokuban - Chalkboard photos to structured lecture notes

Usage:
  kokuban server [flags]            Start the HTTP server
  kokuban capture [flags]           Poll a camera (or watch a directory) and upload frames
  kokuban room <create|list>        Manage rooms via a running server
  kokuban version                   Show version
  kokuban help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kokuban/config.yaml)
  --debug            Enable debug logging

Capture Flags:
  --config string     Config file path
  --room string       Room code to upload captures to
  --camera string     Camera snapshot or MJPEG stream URL
  --watch-dir string  Watch a directory for image files instead of polling
  --backend string    Backend base URL (default from config: http://localhost:8080)
  --interval int      Seconds between captures
  --debug             Enable debug logging

Room Flags:
  --server string    Server URL (default: http://localhost:8080)
  --name string      Room name (create only)

Examples:
  kokuban server
  kokuban room create --name "Linear Algebra"
  kokuban capture --room AB12CD --camera http://192.168.1.20/video
  kokuban capture --room AB12CD --watch-dir ~/board-photos`)
}
