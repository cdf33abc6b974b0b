package closers

import (
	"context"
	"io"

	"github.com/everwish/everwish/libs/logging"
)

// Panic calls Close on the specified closer, panicking on error
func Panic(ctx context.Context, c io.Closer) {
	logger := logging.Logger(ctx, "closers.Panic")
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Error().Err(err).Msg("error attempting to close")
		panic(err.Error())
	}
}

// Log calls Close on the specified closer, logging on error
func Log(ctx context.Context, c io.Closer) {
	logger := logging.Logger(ctx, "closers.Log")
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Error().Err(err).Msg("error attempting to close")
	}
}
