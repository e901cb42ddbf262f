package responder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordGenerate(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{name: "greeting", message: "Hi there", want: topics[0].reply},
		{name: "earning question", message: "How do I EARN more?", want: topics[1].reply},
		{name: "russian referral", message: "как работает реферальная программа", want: topics[2].reply},
		{name: "fallback", message: "tell me about rivers", want: fallbackReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Keyword{}.Generate(context.Background(), "acc", tt.message)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type slowGenerator struct{ delay time.Duration }

func (s slowGenerator) Generate(ctx context.Context, _, _ string) (string, error) {
	select {
	case <-time.After(s.delay):
		return "late", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestWithTimeout(t *testing.T) {
	gen := WithTimeout(slowGenerator{delay: time.Second}, 20*time.Millisecond)
	_, err := gen.Generate(context.Background(), "acc", "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	fast := WithTimeout(slowGenerator{delay: time.Millisecond}, time.Second)
	got, err := fast.Generate(context.Background(), "acc", "hello")
	require.NoError(t, err)
	assert.Equal(t, "late", got)
}

func TestWithTimeoutZeroDisables(t *testing.T) {
	inner := Keyword{}
	assert.Equal(t, inner, WithTimeout(inner, 0))
}
