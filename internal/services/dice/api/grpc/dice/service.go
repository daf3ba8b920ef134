package dice

import (
	"context"
	"log"
	"strings"

	"github.com/louisbranch/dicebot/internal/dice"
	platformotel "github.com/louisbranch/dicebot/internal/platform/otel"
	"github.com/louisbranch/dicebot/internal/random"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service evaluates dice notation for remote callers.
type Service struct {
	limits    dice.Limits
	newSource func(seed *int64) (dice.Source, int64, error)
	tracer    trace.Tracer
}

// NewService creates a dice service enforcing limits on every command.
func NewService(limits dice.Limits) *Service {
	return &Service{
		limits: limits,
		newSource: func(seed *int64) (dice.Source, int64, error) {
			return random.ResolveSource(seed)
		},
		tracer: platformotel.Tracer("github.com/louisbranch/dicebot/internal/services/dice"),
	}
}

// Roll parses, bounds, and evaluates one notation.
func (s *Service) Roll(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := ParseRollRequest(in)
	locale := requestLocale(ctx, req.Locale)
	if err != nil {
		return nil, statusError(err, locale)
	}

	_, span := s.tracer.Start(ctx, "dice.roll", trace.WithAttributes(
		attribute.String("dice.notation", req.Notation),
		attribute.Bool("dice.seeded", req.Seed != nil),
	))
	defer span.End()

	resp, err := s.roll(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, statusError(err, locale)
	}
	span.SetAttributes(
		attribute.Int64("dice.batches", int64(resp.Batches)),
		attribute.Int64("dice.seed", resp.Seed),
	)
	return resp.Struct(), nil
}

func (s *Service) roll(req RollRequest) (RollResponse, error) {
	cmd, err := dice.Parse(req.Notation)
	if err != nil {
		return RollResponse{}, err
	}
	if err := s.limits.Check(cmd); err != nil {
		return RollResponse{}, err
	}
	src, seed, err := s.newSource(req.Seed)
	if err != nil {
		log.Printf("dice: seed source failed: %v", err)
		return RollResponse{}, err
	}
	output, err := cmd.Evaluate(src)
	if err != nil {
		return RollResponse{}, err
	}
	return RollResponse{Output: output, Batches: cmd.BatchCount(), Seed: seed}, nil
}

// requestLocale prefers the request field, then the accept-language header.
func requestLocale(ctx context.Context, requested string) string {
	if locale := strings.TrimSpace(requested); locale != "" {
		return locale
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get("accept-language") {
		if locale := strings.TrimSpace(value); locale != "" {
			return locale
		}
	}
	return ""
}
