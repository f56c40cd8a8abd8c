package utils

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUniqueReceiptNumberSkipsTakenCodes(t *testing.T) {
	calls := 0
	code, err := GenerateUniqueReceiptNumber(context.Background(), func(_ context.Context, _ string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, strings.HasPrefix(code, "PAY-"))
	assert.Len(t, code, len("PAY-")+receiptCodeLength)
}

func TestGenerateUniqueReceiptNumberGivesUp(t *testing.T) {
	_, err := GenerateUniqueReceiptNumber(context.Background(), func(context.Context, string) (bool, error) {
		return true, nil
	})
	assert.ErrorIs(t, err, ErrReceiptNumberExhausted)
}

func TestGenerateUniqueReceiptNumberPropagatesLookupError(t *testing.T) {
	boom := errors.New("db down")
	_, err := GenerateUniqueReceiptNumber(context.Background(), func(context.Context, string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}
