package server

import (
	"context"
	"log"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/louisbranch/dicebot/internal/dice"
	apperrors "github.com/louisbranch/dicebot/internal/platform/errors"
	"github.com/louisbranch/dicebot/internal/platform/i18n/catalog"
	platformotel "github.com/louisbranch/dicebot/internal/platform/otel"
	"github.com/louisbranch/dicebot/internal/platform/timeouts"
	"github.com/louisbranch/dicebot/internal/random"
	dicegrpc "github.com/louisbranch/dicebot/internal/services/dice/api/grpc/dice"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	rollPrefix = "!roll "

	// DefaultMaxDice bounds the dice one chat command may sample.
	DefaultMaxDice = 10000
	// DefaultMaxBatches bounds the batches one chat command may request.
	DefaultMaxBatches = 100

	maxReplyRunes = 2000
	botActorID    = "dicebot"
)

// roller evaluates one notation. batches is zero when evaluation failed.
type roller interface {
	Roll(ctx context.Context, notation string, locale string) (output string, batches uint64, err error)
}

// localRoller evaluates with the in-process engine.
type localRoller struct {
	limits    dice.Limits
	newSource func() (dice.Source, error)
}

func newLocalRoller(limits dice.Limits) *localRoller {
	return &localRoller{
		limits: limits,
		newSource: func() (dice.Source, error) {
			src, _, err := random.NewSource()
			return src, err
		},
	}
}

func (r *localRoller) Roll(_ context.Context, notation string, _ string) (string, uint64, error) {
	cmd, err := dice.Parse(notation)
	if err != nil {
		return "", 0, err
	}
	if err := r.limits.Check(cmd); err != nil {
		return "", 0, err
	}
	src, err := r.newSource()
	if err != nil {
		log.Printf("chat: roll source unavailable: %v", err)
		return "", 0, err
	}
	output, err := cmd.Evaluate(src)
	if err != nil {
		return "", 0, err
	}
	return output, cmd.BatchCount(), nil
}

// remoteRoller delegates to the dice gRPC service.
type remoteRoller struct {
	client *dicegrpc.Client
}

func (r *remoteRoller) Roll(ctx context.Context, notation string, locale string) (string, uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
	defer cancel()
	resp, err := r.client.Roll(callCtx, dicegrpc.RollRequest{Notation: notation, Locale: locale})
	if err != nil {
		if _, _, ok := apperrors.FromStatus(err); !ok {
			log.Printf("chat: remote roll failed: %v", err)
		}
		return "", 0, err
	}
	return resp.Output, resp.Batches, nil
}

// rollBot answers "!roll " messages.
type rollBot struct {
	roller roller
	bundle *catalog.Bundle
	tracer trace.Tracer
}

func newRollBot(r roller) *rollBot {
	return &rollBot{
		roller: r,
		bundle: catalog.Default(),
		tracer: platformotel.Tracer("github.com/louisbranch/dicebot/internal/services/chat"),
	}
}

// rollText extracts the notation from a roll request body.
func rollText(body string) (string, bool) {
	text, ok := strings.CutPrefix(strings.TrimLeftFunc(body, unicode.IsSpace), rollPrefix)
	if !ok {
		return "", false
	}
	return text, true
}

// actor is the identity bot replies are posted under.
func (b *rollBot) actor(locale string) messageActor {
	return messageActor{ID: botActorID, Name: b.bundle.Printer(locale).Sprintf("chat.bot.name")}
}

// reply composes the bot message for a roll request by requester.
func (b *rollBot) reply(ctx context.Context, requester string, locale string, text string) string {
	ctx, span := b.tracer.Start(ctx, "dice.roll", trace.WithAttributes(
		attribute.String("dice.notation", text),
		attribute.String("chat.requester", requester),
	))
	defer span.End()

	printer := b.bundle.Printer(locale)
	header := printer.Sprintf("chat.roll.requested", requester, text)

	output, batches, err := b.roller.Roll(ctx, text, locale)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		output = errorText(err, locale)
		batches = 0
	}
	span.SetAttributes(attribute.Int64("dice.batches", int64(batches)))

	var message strings.Builder
	message.WriteString(header)
	if batches > 1 {
		message.WriteString(printer.Sprintf("chat.roll.batches"))
	} else {
		message.WriteString(printer.Sprintf("chat.roll.single"))
	}
	message.WriteString(output)

	if utf8.RuneCountInString(message.String()) > maxReplyRunes {
		return header + printer.Sprintf("chat.roll.too_long", strconv.Itoa(maxReplyRunes))
	}
	return message.String()
}

// errorText prefers the message a remote service already localized.
func errorText(err error, locale string) string {
	if _, localized, ok := apperrors.FromStatus(err); ok && localized != "" {
		return localized
	}
	return dicegrpc.Localize(err, locale)
}
