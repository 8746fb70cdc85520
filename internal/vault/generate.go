package vault

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// GenerateOptions selects the alphabet and length of a generated password.
type GenerateOptions struct {
	Length    int
	Uppercase bool
	Lowercase bool
	Numbers   bool
	Symbols   bool
}

// DefaultGenerateOptions returns a 16 character password using every class.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Length:    16,
		Uppercase: true,
		Lowercase: true,
		Numbers:   true,
		Symbols:   true,
	}
}

// Alphabet returns the characters a password may be drawn from. With every
// class disabled it falls back to lowercase letters.
func (o GenerateOptions) Alphabet() string {
	var chars string
	if o.Uppercase {
		chars += upperChars
	}
	if o.Lowercase {
		chars += lowerChars
	}
	if o.Numbers {
		chars += digitChars
	}
	if o.Symbols {
		chars += symbolChars
	}
	if chars == "" {
		chars = lowerChars
	}
	return chars
}

// GeneratePassword returns a random password drawn uniformly from the
// alphabet selected by opts.
func GeneratePassword(opts GenerateOptions) (string, error) {
	if opts.Length <= 0 {
		return "", fmt.Errorf("length must be positive (got %d)", opts.Length)
	}
	chars := opts.Alphabet()
	max := big.NewInt(int64(len(chars)))

	out := make([]byte, opts.Length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random: %w", err)
		}
		out[i] = chars[n.Int64()]
	}
	return string(out), nil
}
