// Package shortid allocates short, unguessable, collision-checked external identifiers.
package shortid

import (
	"context"
	"crypto/rand"
	"io"
	"math/big"
)

const (
	// the alphabet excludes visually ambiguous characters (0/O, 1/l/I, 5/S, 8/B).
	defaultAlphabet    = "abcdefghijkmnpqrstuvwxyzACDEFGHJKLMNPQRTUVWXYZ234679"
	defaultLength      = 7
	defaultMaxAttempts = 5
)

const (
	// ErrExhaustedAttempts - all allocation attempts collided with existing identifiers
	ErrExhaustedAttempts Error = "shortid: exhausted allocation attempts"
	// ErrInvalidConfig - the generator was configured with unusable settings
	ErrInvalidConfig Error = "shortid: invalid generator configuration"
)

// Error is a sentinel error type for the package
type Error string

// Error implements the error interface
func (e Error) Error() string {
	return string(e)
}

// TakenFunc reports whether a candidate identifier is already in use
type TakenFunc func(ctx context.Context, id string) (bool, error)

// Generator allocates identifiers with a bounded number of collision retries
type Generator struct {
	alphabet    string
	length      int
	maxAttempts int
	rand        io.Reader
}

// Option applies a setting to a Generator
type Option func(*Generator)

// WithAlphabet overrides the identifier alphabet
func WithAlphabet(alphabet string) Option {
	return func(g *Generator) { g.alphabet = alphabet }
}

// WithLength overrides the identifier length
func WithLength(length int) Option {
	return func(g *Generator) { g.length = length }
}

// WithMaxAttempts overrides the collision-retry budget
func WithMaxAttempts(attempts int) Option {
	return func(g *Generator) { g.maxAttempts = attempts }
}

// WithRandReader overrides the source of randomness
func WithRandReader(r io.Reader) Option {
	return func(g *Generator) { g.rand = r }
}

// New creates a Generator
func New(options ...Option) *Generator {
	g := &Generator{
		alphabet:    defaultAlphabet,
		length:      defaultLength,
		maxAttempts: defaultMaxAttempts,
		rand:        rand.Reader,
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// Generate allocates a new identifier, retrying on collision up to the budget
func (g *Generator) Generate(ctx context.Context, taken TakenFunc) (string, error) {
	if g.length <= 0 || len(g.alphabet) < 2 || g.maxAttempts <= 0 {
		return "", ErrInvalidConfig
	}

	for i := 0; i < g.maxAttempts; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		id, err := g.generate()
		if err != nil {
			return "", err
		}

		exists, err := taken(ctx, id)
		if err != nil {
			return "", err
		}

		if !exists {
			return id, nil
		}
	}

	return "", ErrExhaustedAttempts
}

func (g *Generator) generate() (string, error) {
	max := big.NewInt(int64(len(g.alphabet)))

	result := make([]byte, g.length)
	for i := range result {
		n, err := rand.Int(g.rand, max)
		if err != nil {
			return "", err
		}
		result[i] = g.alphabet[n.Int64()]
	}

	return string(result), nil
}
