// Package mcp parses MCP command flags and selects stdio or HTTP transport.
package mcp

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/dicebot/internal/platform/cmd"
	"github.com/louisbranch/dicebot/internal/platform/config"
	mcpservice "github.com/louisbranch/dicebot/internal/services/mcp/service"
)

// Config holds MCP command configuration.
type Config struct {
	DiceAddr     string   `env:"DICEBOT_DICE_ADDR"`
	HTTPAddr     string   `env:"DICEBOT_MCP_HTTP_ADDR"     envDefault:"localhost:8081"`
	Transport    string   `env:"DICEBOT_MCP_TRANSPORT"     envDefault:"stdio"`
	AllowedHosts []string `env:"DICEBOT_MCP_ALLOWED_HOSTS" envSeparator:","`
	MaxDice      uint64   `env:"DICEBOT_MAX_DICE"          envDefault:"10000"`
	MaxBatches   uint64   `env:"DICEBOT_MAX_BATCHES"       envDefault:"100"`
}

// ParseConfig parses the provided environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, environment map[string]string) (Config, error) {
	var cfg Config
	if err := config.ParseEnvFrom(&cfg, environment); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DiceAddr, "dice-addr", cfg.DiceAddr, "dice service gRPC address (empty rolls in process)")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP protocol adapter.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		return mcpservice.Run(ctx, mcpservice.Config{
			DiceAddr:     cfg.DiceAddr,
			Transport:    mcpservice.TransportKind(cfg.Transport),
			HTTPAddr:     cfg.HTTPAddr,
			AllowedHosts: cfg.AllowedHosts,
			MaxDice:      cfg.MaxDice,
			MaxBatches:   cfg.MaxBatches,
		})
	})
}
