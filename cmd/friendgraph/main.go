// ABOUTME: Entry point for the friendgraph server
// ABOUTME: Provides serve, init, health, ready and version subcommands

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/friendgraph/internal/config"
	"github.com/2389/friendgraph/internal/gateway"
)

// Version is set at build time.
var version = "dev"

const banner = `
  __      _                _                       _
 / _|_ __(_) ___ _ __   __| | __ _ _ __ __ _ _ __ | |__
| |_| '__| |/ _ \ '_ \ / _' |/ _' | '__/ _' | '_ \| '_ \
|  _| |  | |  __/ | | | (_| | (_| | | | (_| | |_) | | | |
|_| |_|  |_|\___|_| |_|\__,_|\__, |_|  \__,_| .__/|_| |_|
                             |___/          |_|
`

// getConfigPath returns the path to the config file.
// Priority: FRIENDGRAPH_CONFIG env var > XDG_CONFIG_HOME/friendgraph/config.yaml > ~/.config/friendgraph/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("FRIENDGRAPH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "friendgraph", "config.yaml")
}

// getDataPath returns the path to the friendgraph data directory.
// Priority: XDG_DATA_HOME/friendgraph > ~/.local/share/friendgraph
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "friendgraph")
}

func usage() {
	fmt.Println("Usage: friendgraph <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the server")
	fmt.Println("  init      Write a starter config with a random JWT secret")
	fmt.Println("  health    Check server liveness")
	fmt.Println("  ready     Check server readiness (database reachable)")
	fmt.Println("  version   Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(getConfigPath(), getDataPath())
	case "health":
		err = runProbe(ctx, "/health")
	case "ready":
		err = runProbe(ctx, "/health/ready")
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s (%s)\n", cfg.Database.Path, cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Limit:     %d requests / %s\n", cfg.Limits.SendPerWindow, cfg.Limits.SendWindow)

	if cfg.NATS.URL != "" {
		green.Print("    ▶ ")
		fmt.Printf("NATS:      ")
		cyan.Print(cfg.NATS.URL)
		gray.Printf(" (%s.*)", cfg.NATS.SubjectPrefix)
		fmt.Println()
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	} else {
		yellow.Println("    ▶ Metrics disabled")
	}

	fmt.Println()

	logger.Info("starting friendgraph",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// runInit writes a starter config with a random JWT secret. An existing file
// is never overwritten.
func runInit(configPath, dataPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0o750); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	content := renderConfig(filepath.Join(dataPath, "friendgraph.db"), jwtSecret)
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Fail now rather than at serve time if the template drifts from Validate.
	if _, err := config.Load(configPath); err != nil {
		return fmt.Errorf("validating generated config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println()
	fmt.Println("  To start the server:")
	fmt.Println("    friendgraph serve")
	return nil
}

func renderConfig(dbPath, jwtSecret string) string {
	return fmt.Sprintf(`# friendgraph configuration
# Generated by friendgraph init

server:
  http_addr: "localhost:8080"

database:
  path: %q
  driver: "sqlite"

auth:
  jwt_secret: %q
  access_ttl: "5m"
  refresh_ttl: "24h"

limits:
  send_per_window: 3
  send_window: "1m"
  auth_rps: 1
  auth_burst: 5

nats:
  url: ""
  subject_prefix: "friends.request"

logging:
  level: "info"
  format: "text"

metrics:
  enabled: true
  path: "/metrics"
`, dbPath, jwtSecret)
}

// runProbe requests path on the configured server and prints the body.
func runProbe(ctx context.Context, path string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, body)
	}

	fmt.Println(string(body))
	return nil
}
