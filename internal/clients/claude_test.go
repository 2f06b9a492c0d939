package clients

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/advisor/internal/capabilities"
)

func TestNewClaudeClientRequiresKey(t *testing.T) {
	_, err := NewClaudeClient("", zerolog.Nop())
	assert.Error(t, err)

	client, err := NewClaudeClient("sk-test", zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, extractJSON("Here is the summary:\n```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":{"b":2}}`, extractJSON(`prefix {"a":{"b":2}} suffix`))
	assert.Equal(t, "no json here", extractJSON("no json here"))
}

func TestClassifyAnthropicErrorContext(t *testing.T) {
	assert.ErrorIs(t, classifyAnthropicError(context.DeadlineExceeded), context.DeadlineExceeded)
	assert.ErrorIs(t, classifyAnthropicError(context.Canceled), context.Canceled)
}

func TestClassifyAnthropicErrorGeneric(t *testing.T) {
	err := classifyAnthropicError(errors.New("connection reset"))
	assert.ErrorIs(t, err, capabilities.ErrUnavailable)
	assert.False(t, capabilities.Retryable(context.DeadlineExceeded))
	assert.True(t, capabilities.Retryable(err))
}
