// Package dice parses dice command flags and starts the gRPC service.
package dice

import (
	"context"
	"flag"

	"github.com/louisbranch/dicebot/internal/dice"
	entrypoint "github.com/louisbranch/dicebot/internal/platform/cmd"
	server "github.com/louisbranch/dicebot/internal/services/dice/app"
)

// Config holds dice command configuration.
type Config struct {
	Port       int    `env:"DICEBOT_DICE_PORT"        envDefault:"8082"`
	Addr       string `env:"DICEBOT_DICE_LISTEN_ADDR"`
	MaxDice    uint64 `env:"DICEBOT_MAX_DICE"         envDefault:"10000"`
	MaxBatches uint64 `env:"DICEBOT_MAX_BATCHES"      envDefault:"100"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The dice server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The dice server listen address (overrides -port)")
	fs.Uint64Var(&cfg.MaxDice, "max-dice", cfg.MaxDice, "maximum dice sampled by one command")
	fs.Uint64Var(&cfg.MaxBatches, "max-batches", cfg.MaxBatches, "maximum batches requested by one command")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the dice gRPC service.
func Run(ctx context.Context, cfg Config) error {
	limits := dice.Limits{MaxDice: cfg.MaxDice, MaxBatches: cfg.MaxBatches}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDice, func(context.Context) error {
		if cfg.Addr != "" {
			return server.RunWithAddr(ctx, cfg.Addr, limits)
		}
		return server.Run(ctx, cfg.Port, limits)
	})
}
