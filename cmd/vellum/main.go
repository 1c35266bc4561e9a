// ABOUTME: Entry point for the vellum document store server
// ABOUTME: Serves the HTTP API and the MCP tool front door from one listener

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/config"
	"github.com/2389/vellum/internal/httpapi"
	"github.com/2389/vellum/internal/mcp"
	"github.com/2389/vellum/internal/obs"
	"github.com/2389/vellum/internal/service"
	"github.com/2389/vellum/internal/store"
)

// version is overridden at build time via -ldflags.
var version = "dev"

const banner = `
            _ _
 __   _____| | |_   _ _ __ ___
 \ \ / / _ \ | | | | | '_ ' _ \
  \ V /  __/ | | |_| | | | | | |
   \_/ \___|_|_|\__,_|_| |_| |_|
`

// getConfigPath returns the path to the vellum config file.
// Priority: VELLUM_CONFIG env var > XDG_CONFIG_HOME/vellum/vellum.yaml > ~/.config/vellum/vellum.yaml
func getConfigPath() string {
	if envPath := os.Getenv("VELLUM_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "vellum.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "vellum", "vellum.yaml")
}

// getDataPath returns the path to the vellum data directory.
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "vellum")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: vellum <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
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

	obs.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger := slog.Default()

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	if cfg.MCP.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("MCP:      %s\n", cfg.MCP.Path)
	}
	fmt.Println()

	logger.Info("starting vellum",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	signer, err := auth.NewSigner([]byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	if err != nil {
		return fmt.Errorf("creating token signer: %w", err)
	}

	static := auth.StaticCredentials{
		AdminSecret:  cfg.Auth.AdminSecret,
		LegacyTokens: cfg.Auth.LegacyTokens,
	}
	resolver := auth.NewResolver(st, st, st, st, signer, static)
	policy := auth.NewBootstrapPolicy(st, cfg.Auth.AdminSecret)

	users := service.NewUsers(st, st, signer, policy)
	tokens := service.NewTokens(st, st, st)
	collections := service.NewCollections(st, st, st, resolver)
	documents := service.NewDocuments(st, resolver)

	mux := http.NewServeMux()

	api := httpapi.NewServer(resolver, users, tokens, collections, documents)
	api.Register(mux)

	if cfg.MCP.Enabled {
		registry := mcp.NewRegistry()
		mcp.RegisterVellumTools(registry, collections, documents, tokens)
		mcpServer, err := mcp.NewServer(resolver, registry, cfg.MCP.Path)
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
		mcpServer.RegisterRoutes(mux)
	}

	if cfg.Metrics.Enabled {
		obs.Init()
		mux.Handle("GET "+cfg.Metrics.Path, obs.Handler())
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: obs.Instrument(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/health", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("vellum configuration setup")
	fmt.Println("==========================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "vellum.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Auth Configuration ---")
	adminSecret := prompt(reader, "Static admin secret (leave empty to disable)", "")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Always generate a fresh signing secret
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	var cfg strings.Builder
	cfg.WriteString("# vellum configuration\n")
	cfg.WriteString("# Generated by vellum init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	if adminSecret != "" {
		cfg.WriteString(fmt.Sprintf("  admin_secret: \"%s\"\n", adminSecret))
	}
	cfg.WriteString("  access_ttl: \"30m\"\n")
	cfg.WriteString("  refresh_ttl: \"168h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("mcp:\n")
	cfg.WriteString("  enabled: true\n")
	cfg.WriteString("  path: \"/mcp\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  vellum serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
