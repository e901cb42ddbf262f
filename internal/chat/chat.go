package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BatmanBruc/chat-earn-ledger/internal/ledger"
	"github.com/BatmanBruc/chat-earn-ledger/types"
)

//go:generate mockgen -destination=mock/generator.go -package=mock github.com/BatmanBruc/chat-earn-ledger/types ResponseGenerator

type Turn struct {
	AccountID string
	EventID   string
	Platform  types.Platform
	Message   string
}

type Reply struct {
	Text     string
	Event    types.ChatEvent
	Replayed bool
}

type Recorder interface {
	Record(ctx context.Context, req ledger.ChatRequest) (ledger.Receipt, error)
}

// Service runs one chat turn: generate the answer, then credit it.
type Service struct {
	generator types.ResponseGenerator
	ledger    Recorder
	log       *slog.Logger
}

func NewService(generator types.ResponseGenerator, ledger Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{generator: generator, ledger: ledger, log: logger}
}

func (s *Service) Handle(ctx context.Context, turn Turn) (Reply, error) {
	message := strings.TrimSpace(turn.Message)
	if message == "" {
		return Reply{}, types.ErrEmptyMessage
	}
	if strings.TrimSpace(turn.EventID) == "" {
		return Reply{}, types.ErrInvalidEvent
	}

	text, err := s.generator.Generate(ctx, turn.AccountID, message)
	if err != nil {
		s.log.Warn("Response generation failed",
			slog.String("type", "ledger"),
			slog.String("account_id", turn.AccountID),
			slog.Any("error", err))
		return Reply{}, fmt.Errorf("%w: %v", types.ErrResponseGeneratorUnavailable, err)
	}

	receipt, err := s.ledger.Record(ctx, ledger.ChatRequest{
		AccountID: turn.AccountID,
		EventID:   turn.EventID,
		Platform:  turn.Platform,
		Message:   message,
		Response:  text,
	})
	if err != nil {
		return Reply{}, err
	}

	// a replay answers with the text stored the first time
	return Reply{Text: receipt.Event.Response, Event: receipt.Event, Replayed: receipt.Replayed}, nil
}
