package responder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/types"
)

type topic struct {
	keywords []string
	reply    string
}

var topics = []topic{
	{
		keywords: []string{"hello", "hi", "hey", "привет", "здравствуй"},
		reply:    "Hello! I'm your assistant. Every message you send here earns you points. What would you like to talk about?",
	},
	{
		keywords: []string{"earn", "money", "points", "balance", "заработ", "баланс"},
		reply:    "You earn points for every message. Premium members earn more per message, and you get a bonus whenever someone you invited chats.",
	},
	{
		keywords: []string{"refer", "invite", "friend", "реферал", "пригласи"},
		reply:    "Share your referral code with friends. When they sign up with it, you receive a bonus every time they chat.",
	},
	{
		keywords: []string{"premium", "премиум"},
		reply:    "Premium multiplies what you earn per message for as long as it is active.",
	},
	{
		keywords: []string{"help", "помощ"},
		reply:    "Just write to me about anything. Ask about earning, referrals or premium if you want details.",
	},
}

const fallbackReply = "Interesting! Tell me more. Each message you send keeps adding to your balance."

// Keyword answers from a fixed table of topics. It never fails.
type Keyword struct{}

var _ types.ResponseGenerator = Keyword{}

func (Keyword) Generate(ctx context.Context, _ string, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lower := strings.ToLower(message)
	for _, t := range topics {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				return t.reply, nil
			}
		}
	}
	return fallbackReply, nil
}

type timeoutGenerator struct {
	next    types.ResponseGenerator
	timeout time.Duration
}

// WithTimeout bounds every Generate call of next by d.
func WithTimeout(next types.ResponseGenerator, d time.Duration) types.ResponseGenerator {
	if d <= 0 {
		return next
	}
	return &timeoutGenerator{next: next, timeout: d}
}

func (g *timeoutGenerator) Generate(ctx context.Context, accountID, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := g.next.Generate(ctx, accountID, message)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("generate response: %w", ctx.Err())
	}
}
