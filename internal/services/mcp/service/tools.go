package service

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/dicebot/internal/platform/errors"
	"github.com/louisbranch/dicebot/internal/platform/errors/i18n"
	dicegrpc "github.com/louisbranch/dicebot/internal/services/dice/api/grpc/dice"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RollDiceInput represents the MCP tool input for rolling dice notation.
type RollDiceInput struct {
	Notation string `json:"notation" jsonschema:"dice notation such as 3 4d6 k3 + 2"`
	Seed     string `json:"seed,omitempty" jsonschema:"optional decimal seed that replays an earlier roll"`
	Locale   string `json:"locale,omitempty" jsonschema:"optional locale for error messages such as pt-BR"`
}

// RollDiceResult represents the MCP tool output for a roll.
type RollDiceResult struct {
	Output  string `json:"output" jsonschema:"one line per batch with the rolls and the total"`
	Batches uint64 `json:"batches" jsonschema:"number of batches evaluated"`
	Seed    string `json:"seed" jsonschema:"decimal seed that replays this roll"`
}

// roller evaluates one request. Errors are gRPC status errors.
type roller func(ctx context.Context, req dicegrpc.RollRequest) (dicegrpc.RollResponse, error)

// localRoller evaluates with an in-process dice service.
func localRoller(svc *dicegrpc.Service) roller {
	return func(ctx context.Context, req dicegrpc.RollRequest) (dicegrpc.RollResponse, error) {
		out, err := svc.Roll(ctx, req.Struct())
		if err != nil {
			return dicegrpc.RollResponse{}, err
		}
		return dicegrpc.ParseRollResponse(out)
	}
}

// remoteRoller evaluates through the dice gRPC service.
func remoteRoller(client *dicegrpc.Client) roller {
	return func(ctx context.Context, req dicegrpc.RollRequest) (dicegrpc.RollResponse, error) {
		return client.Roll(ctx, req)
	}
}

// RollDiceTool defines the MCP tool schema for rolling dice notation.
func RollDiceTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "roll_dice",
		Description: "Rolls dice notation: an optional batch count, then dice terms like 4d6 k3 joined by + or -",
	}
}

// RollDiceHandler executes a roll. Failures become tool errors carrying the
// localized message.
func RollDiceHandler(roll roller) mcp.ToolHandlerFor[RollDiceInput, RollDiceResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RollDiceInput) (*mcp.CallToolResult, RollDiceResult, error) {
		req := dicegrpc.RollRequest{Notation: input.Notation, Locale: input.Locale}
		if raw := strings.TrimSpace(input.Seed); raw != "" {
			seed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, RollDiceResult{}, errors.New(i18n.GetCatalog(input.Locale).Format(
					string(apperrors.CodeSeedInvalid), map[string]string{"Seed": raw},
				))
			}
			req.Seed = &seed
		}

		resp, err := roll(ctx, req)
		if err != nil {
			return nil, RollDiceResult{}, toolError(err, input.Locale)
		}
		return nil, RollDiceResult{
			Output:  resp.Output,
			Batches: resp.Batches,
			Seed:    strconv.FormatInt(resp.Seed, 10),
		}, nil
	}
}

func toolError(err error, locale string) error {
	if _, localized, ok := apperrors.FromStatus(err); ok && localized != "" {
		return errors.New(localized)
	}
	log.Printf("mcp: roll failed: %v", err)
	return errors.New(dicegrpc.Localize(err, locale))
}
