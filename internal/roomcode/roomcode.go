package roomcode

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// Alphabet has no vowels or Y so codes stay speakable and never spell words.
const Alphabet = "BCDFGHJKLMNPQRSTVWXZ"

const Length = 5

// MaxAttempts bounds GenerateUnique. 20^5 codes vs a handful of live lobbies
// means hitting this is a sign of a broken random source, not bad luck.
const MaxAttempts = 64

var ErrExhausted = errors.New("room code space exhausted")

func Generate() (string, error) {
	code := make([]byte, Length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := range code {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = Alphabet[num.Int64()]
	}
	return string(code), nil
}

// GenerateUnique keeps drawing codes until taken reports false.
func GenerateUnique(taken func(string) bool) (string, error) {
	return generateUnique(Generate, taken)
}

func generateUnique(gen func() (string, error), taken func(string) bool) (string, error) {
	for range MaxAttempts {
		c, err := gen()
		if err != nil {
			return "", err
		}
		if !taken(c) {
			return c, nil
		}
	}
	return "", ErrExhausted
}

func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(Alphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
