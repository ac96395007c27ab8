package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := ErrDuplicateRequest.With("sender_id", "a").With("receiver_id", "b")

	assert.ErrorIs(t, err, ErrDuplicateRequest)
	assert.NotErrorIs(t, err, ErrAlreadyFriends)

	wrapped := fmt.Errorf("send request: %w", err)
	assert.ErrorIs(t, wrapped, ErrDuplicateRequest)
	assert.Equal(t, Conflict, KindOf(wrapped))
	assert.Equal(t, CodeDuplicateRequest, CodeOf(wrapped))
}

func TestWithDoesNotMutateSentinel(t *testing.T) {
	_ = ErrChatNotFound.With("chat_id", "123")
	assert.Empty(t, ErrChatNotFound.Fields)
}

func TestErrorString(t *testing.T) {
	cause := errors.New("connection refused")
	err := Backend("append_message", cause).With("chat_id", "c1")

	assert.Equal(t, "backend failure (chat_id=c1, op=append_message): connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, Internal, KindOf(err))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "validation", err: ErrEmptyContent, want: Validation},
		{name: "not found", err: ErrRequestNotFound, want: NotFound},
		{name: "forbidden", err: ErrNotReceiver, want: Forbidden},
		{name: "conflict", err: ErrInvalidState, want: Conflict},
		{name: "plain error", err: errors.New("boom"), want: Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
