package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

const (
	// DefaultAlphabet leaves out 0 O o 1 l I i.
	DefaultAlphabet    = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
	DefaultCodeLength  = 6
	DefaultMaxAttempts = 10
)

var reservedVanities = map[string]bool{
	"api":    true,
	"admin":  true,
	"r":      true,
	"v1":     true,
	"qr":     true,
	"health": true,
	"stats":  true,
}

var vanityRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// ValidateVanity reports whether code may be used as a caller-chosen short code.
func ValidateVanity(code string) bool {
	if reservedVanities[strings.ToLower(code)] {
		return false
	}
	return vanityRegex.MatchString(code)
}

// RandSource is satisfied by *math/rand/v2.Rand.
type RandSource interface {
	IntN(n int) int
}

// ExistsFunc reports whether a code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator produces random short codes and retries until one is free.
type Generator struct {
	mu          sync.Mutex
	rnd         RandSource
	alphabet    string
	length      int
	maxAttempts int
}

func NewGenerator(rnd RandSource, length, maxAttempts int) *Generator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{
		rnd:         rnd,
		alphabet:    DefaultAlphabet,
		length:      length,
		maxAttempts: maxAttempts,
	}
}

// Generate returns a code for which exists reports false. It fails with
// ErrExhausted after maxAttempts collisions; errors from exists are returned as-is.
func (g *Generator) Generate(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code := g.candidate()
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, g.maxAttempts)
}

func (g *Generator) candidate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.Grow(g.length)
	for i := 0; i < g.length; i++ {
		b.WriteByte(g.alphabet[g.rnd.IntN(len(g.alphabet))])
	}
	return b.String()
}

// CodeChoice is either Vanity or Generated.
type CodeChoice interface {
	codeChoice()
}

// Vanity is a caller-chosen code.
type Vanity struct {
	Code string
}

// Generated asks the service to pick a code.
type Generated struct{}

func (Vanity) codeChoice()    {}
func (Generated) codeChoice() {}

// ChooseCode maps an optional vanity string to a CodeChoice.
func ChooseCode(vanity string) CodeChoice {
	if v := strings.TrimSpace(vanity); v != "" {
		return Vanity{Code: v}
	}
	return Generated{}
}
