package utils

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

const receiptCodeLength = 8
const receiptPrefix = "PAY-"
const letterBytes = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const maxReceiptAttempts = 10

var ErrReceiptNumberExhausted = errors.New("could not generate a unique receipt number")

var (
	seededRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	randMu     sync.Mutex
)

func randomCode(n int) string {
	randMu.Lock()
	defer randMu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
	}
	return string(b)
}

// GenerateUniqueReceiptNumber draws PAY-XXXXXXXX codes until exists reports a free one.
func GenerateUniqueReceiptNumber(ctx context.Context, exists func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < maxReceiptAttempts; i++ {
		code := receiptPrefix + randomCode(receiptCodeLength)
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrReceiptNumberExhausted
}
