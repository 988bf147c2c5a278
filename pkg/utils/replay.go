package utils

import (
	"context"
	"strings"
	"time"
)

// Replay emits text word by word. Every call receives the accumulated
// prefix so far, and calls are spaced by delay. It stops early when ctx
// ends or emit fails.
func Replay(ctx context.Context, text string, delay time.Duration, emit func(partial string) error) error {
	words := strings.Split(text, " ")
	var accumulated strings.Builder
	for i, word := range words {
		accumulated.WriteString(word)
		accumulated.WriteString(" ")
		if err := emit(strings.TrimSpace(accumulated.String())); err != nil {
			return err
		}
		if i == len(words)-1 || delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ctx.Err()
}
