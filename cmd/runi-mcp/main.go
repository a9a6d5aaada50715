// ABOUTME: Entry point for the runi MCP server
// ABOUTME: Serves collections to AI clients and offers token, events and health commands

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/runi-mcp/internal/auth"
	"github.com/2389/runi-mcp/internal/config"
	"github.com/2389/runi-mcp/internal/gateway"
	"github.com/2389/runi-mcp/internal/journal"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                  _
 _ __ _   _ _ __ (_)
| '__| | | | '_ \| |
| |  | |_| | | | | |
|_|   \__,_|_| |_|_|  mcp
`

// getConfigPath returns the path to the config file.
// Priority: RUNI_CONFIG env var > XDG config home.
func getConfigPath() string {
	if envPath := os.Getenv("RUNI_CONFIG"); envPath != "" {
		return envPath
	}
	return config.DefaultPath()
}

func loadConfig() (*config.Config, string, error) {
	path := getConfigPath()
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func usage() {
	fmt.Println("Usage: runi-mcp <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                      Start the MCP server")
	fmt.Println("  token --principal NAME     Issue a JWT for MCP clients")
	fmt.Println("  events [--limit N]         Print journaled events in causal order")
	fmt.Println("  health                     Check server health")
	fmt.Println("  version                    Print version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "token":
		err = runToken(args)
	case "events":
		err = runEvents(ctx, args)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
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
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:      %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("MCP:         http://%s/mcp\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Collections: %s\n", cfg.Collections.Dir)
	if cfg.Journal.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Journal:     %s\n", cfg.Journal.Path)
	}
	if cfg.Auth.RequireAuth {
		yellow.Println("    ▶ bearer auth required")
	}
	fmt.Println()

	logger.Info("starting runi-mcp",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"collections_dir", cfg.Collections.Dir,
	)

	sup := gateway.NewSupervisor(logger, gateway.WithVersion(version))
	h, err := sup.Start(cfg)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-h.Done():
		return h.Err()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+time.Second)
	defer cancel()
	return sup.Stop(stopCtx)
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	principal := fs.String("principal", "", "principal id placed in the sub claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *principal == "" {
		return errors.New("--principal flag is required")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}
	token, err := verifier.Generate(*principal, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runEvents(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	limit := fs.Int("limit", journal.DefaultLimit, "maximum events to print")
	event := fs.String("event", "", "event name, or prefix ending in ':'")
	correlation := fs.String("correlation", "", "only events with this correlation id")
	asJSON := fs.Bool("json", false, "print raw envelopes as JSON lines")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		return errors.New("journal is disabled in config")
	}

	j, err := journal.Open(cfg.Journal.Path, setupLogger(config.LoggingConfig{Level: "warn"}))
	if err != nil {
		return err
	}
	defer j.Close()

	envs, err := j.List(ctx, journal.ListParams{Event: *event, CorrelationID: *correlation, Limit: *limit})
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, env := range envs {
			if err := enc.Encode(env); err != nil {
				return err
			}
		}
		return nil
	}

	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)
	for _, env := range envs {
		seq := "-"
		if env.Lamport != nil {
			seq = fmt.Sprintf("%d", env.Lamport.Seq)
		}
		gray.Printf("%s %5s ", env.Timestamp, seq)
		cyan.Printf("%-18s ", env.Event)
		fmt.Printf("%s %s\n", env.Actor, env.Payload)
	}
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
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

	var h gateway.Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("decoding health: %w", err)
	}

	color.New(color.FgGreen).Print("healthy")
	fmt.Printf(" (version %s, %d sessions, %d SSE clients)\n", h.Version, h.Sessions, h.SSEClients)
	return nil
}
