package context

import (
	"context"

	"github.com/rs/zerolog"
)

// GetStringFromContext - given a CTXKey return the string value from the context if it exists
func GetStringFromContext(ctx context.Context, key CTXKey) (string, error) {
	v := ctx.Value(key)
	if v == nil {
		// value not on context
		return "", ErrNotInContext
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	// value not a string
	return "", ErrValueWrongType
}

// GetInt64FromContext - given a CTXKey return the int64 value from the context if it exists
func GetInt64FromContext(ctx context.Context, key CTXKey) (int64, error) {
	v := ctx.Value(key)
	if v == nil {
		return 0, ErrNotInContext
	}
	if i, ok := v.(int64); ok {
		return i, nil
	}
	return 0, ErrValueWrongType
}

// GetLogLevelFromContext - return the log level from the context if it exists
func GetLogLevelFromContext(ctx context.Context, key CTXKey) (zerolog.Level, error) {
	v := ctx.Value(key)
	if v == nil {
		return zerolog.InfoLevel, ErrNotInContext
	}
	if l, ok := v.(zerolog.Level); ok {
		return l, nil
	}
	return zerolog.InfoLevel, ErrValueWrongType
}

// GetLogger - return the logger value from the context if it exists
func GetLogger(ctx context.Context) (*zerolog.Logger, error) {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		// zerolog returns a disabled logger when none was associated
		return nil, ErrNotInContext
	}
	return l, nil
}
