// Package roll builds the one-shot roll command.
//
// Without an address the command evaluates in-process with the same dice
// service the gRPC server exposes, so local and remote rolls print the same
// output and the same localized errors.
package roll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/louisbranch/dicebot/internal/dice"
	entrypoint "github.com/louisbranch/dicebot/internal/platform/cmd"
	apperrors "github.com/louisbranch/dicebot/internal/platform/errors"
	platformgrpc "github.com/louisbranch/dicebot/internal/platform/grpc"
	"github.com/louisbranch/dicebot/internal/platform/otel"
	"github.com/louisbranch/dicebot/internal/platform/timeouts"
	dicegrpc "github.com/louisbranch/dicebot/internal/services/dice/api/grpc/dice"
	"github.com/spf13/cobra"
)

// Set via -ldflags at build time.
var version = "dev"

// Config holds roll command defaults read from the environment.
type Config struct {
	DiceAddr   string `env:"DICEBOT_DICE_ADDR"`
	Locale     string `env:"DICEBOT_LOCALE"`
	MaxDice    uint64 `env:"DICEBOT_MAX_DICE"    envDefault:"10000"`
	MaxBatches uint64 `env:"DICEBOT_MAX_BATCHES" envDefault:"100"`
}

// errRollFailed marks a roll that already reported its failure to stderr.
var errRollFailed = errors.New("roll failed")

// NewCommand returns the roll command with defaults from the environment.
func NewCommand() (*cobra.Command, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return nil, err
	}
	return newCommand(cfg, nil), nil
}

func newCommand(cfg Config, dialer platformgrpc.Dialer) *cobra.Command {
	var seed int64
	var showSeed bool
	cmd := &cobra.Command{
		Use:           "roll [flags] <notation...>",
		Short:         "Roll dice notation such as 3 4d6 k3 + 2",
		Args:          cobra.MinimumNArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dicegrpc.RollRequest{
				Notation: strings.Join(args, " "),
				Locale:   cfg.Locale,
			}
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}
			shutdown, err := otel.Setup(cmd.Context(), entrypoint.ServiceRoll)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
				defer cancel()
				_ = shutdown(shutdownCtx)
			}()

			roll, closeRoll, err := newRoller(cmd.Context(), cfg, dialer)
			if err != nil {
				return err
			}
			defer closeRoll()

			resp, err := roll(cmd.Context(), req)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), errorText(err, cfg.Locale))
				return errRollFailed
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Output)
			if showSeed {
				fmt.Fprintf(cmd.ErrOrStderr(), "seed: %d\n", resp.Seed)
			}
			return nil
		},
	}
	cmd.SetVersionTemplate("roll version {{.Version}}\n")

	flags := cmd.Flags()
	flags.Int64Var(&seed, "seed", 0, "replay a roll with this seed")
	flags.BoolVar(&showSeed, "show-seed", false, "print the seed to stderr after the roll")
	flags.StringVar(&cfg.DiceAddr, "addr", cfg.DiceAddr, "dice gRPC address; empty rolls locally (env DICEBOT_DICE_ADDR)")
	flags.StringVar(&cfg.Locale, "locale", cfg.Locale, "locale for error messages (env DICEBOT_LOCALE)")
	flags.Uint64Var(&cfg.MaxDice, "max-dice", cfg.MaxDice, "maximum dice sampled by a local roll")
	flags.Uint64Var(&cfg.MaxBatches, "max-batches", cfg.MaxBatches, "maximum batches requested by a local roll")
	// Notation like "3d6 - 2" must not be read as flags after the first term.
	flags.SetInterspersed(false)
	return cmd
}

type roller func(ctx context.Context, req dicegrpc.RollRequest) (dicegrpc.RollResponse, error)

func newRoller(ctx context.Context, cfg Config, dialer platformgrpc.Dialer) (roller, func(), error) {
	addr := strings.TrimSpace(cfg.DiceAddr)
	if addr == "" {
		svc := dicegrpc.NewService(dice.Limits{MaxDice: cfg.MaxDice, MaxBatches: cfg.MaxBatches})
		return func(ctx context.Context, req dicegrpc.RollRequest) (dicegrpc.RollResponse, error) {
			out, err := svc.Roll(ctx, req.Struct())
			if err != nil {
				return dicegrpc.RollResponse{}, err
			}
			return dicegrpc.ParseRollResponse(out)
		}, func() {}, nil
	}

	conn, err := platformgrpc.DialWithHealth(ctx, addr, platformgrpc.DialConfig{
		Dialer:  dialer,
		Service: dicegrpc.ServiceName,
		Timeout: timeouts.GRPCDial,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to dice service: %w", err)
	}
	client := dicegrpc.NewClient(conn)
	return func(ctx context.Context, req dicegrpc.RollRequest) (dicegrpc.RollResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
		defer cancel()
		return client.Roll(callCtx, req)
	}, func() { _ = conn.Close() }, nil
}

func errorText(err error, locale string) string {
	if _, localized, ok := apperrors.FromStatus(err); ok && localized != "" {
		return localized
	}
	log.Printf("roll: request failed: %v", err)
	return dicegrpc.Localize(err, locale)
}

// Execute runs cmd with args and returns the process exit code.
func Execute(ctx context.Context, cmd *cobra.Command, args []string, stderr io.Writer) int {
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRollFailed) {
			fmt.Fprintf(stderr, "roll: %v\n", err)
		}
		return 1
	}
	return 0
}
