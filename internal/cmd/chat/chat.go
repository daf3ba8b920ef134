// Package chat parses chat command flags and composes the websocket service.
package chat

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/louisbranch/dicebot/internal/platform/cmd"
	"github.com/louisbranch/dicebot/internal/platform/config"
	server "github.com/louisbranch/dicebot/internal/services/chat/app"
)

// Config holds chat command configuration.
type Config struct {
	HTTPAddr    string `env:"DICEBOT_CHAT_HTTP_ADDR"    envDefault:":8086"`
	DiceAddr    string `env:"DICEBOT_DICE_ADDR"`
	TokenSecret string `env:"DICEBOT_CHAT_TOKEN_SECRET"`
	SecretsFile string `env:"DICEBOT_SECRETS_FILE"`
	MaxDice     uint64 `env:"DICEBOT_MAX_DICE"          envDefault:"10000"`
	MaxBatches  uint64 `env:"DICEBOT_MAX_BATCHES"       envDefault:"100"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "chat HTTP listen address")
	fs.StringVar(&cfg.DiceAddr, "dice-addr", cfg.DiceAddr, "dice service gRPC address (empty rolls in process)")
	fs.StringVar(&cfg.SecretsFile, "secrets-file", cfg.SecretsFile, "TOML secrets file")
	fs.Uint64Var(&cfg.MaxDice, "max-dice", cfg.MaxDice, "maximum dice sampled by one command")
	fs.Uint64Var(&cfg.MaxBatches, "max-batches", cfg.MaxBatches, "maximum batches requested by one command")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the chat app and serves websocket rooms with the roll bot.
func Run(ctx context.Context, cfg Config) error {
	secrets, err := config.LoadSecrets(cfg.SecretsFile)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceChat, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:    cfg.HTTPAddr,
			DiceAddr:    cfg.DiceAddr,
			TokenSecret: config.FirstNonEmpty(cfg.TokenSecret, secrets.ChatTokenSecret),
			MaxDice:     cfg.MaxDice,
			MaxBatches:  cfg.MaxBatches,
		}); err != nil {
			return fmt.Errorf("serve chat: %w", err)
		}
		return nil
	})
}
