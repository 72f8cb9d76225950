package roomcode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_LengthAndAlphabet(t *testing.T) {
	require.Len(t, Alphabet, 20)

	for i := 0; i < 500; i++ {
		code, err := Generate()
		require.NoError(t, err)
		require.Len(t, code, Length)
		require.True(t, Valid(code), "code %q has a symbol outside the alphabet", code)
	}
}

func TestGenerateUnique_SkipsTakenCodes(t *testing.T) {
	seq := []string{"BBBBB", "CCCCC", "DDDDD"}
	i := 0
	gen := func() (string, error) {
		c := seq[i]
		i++
		return c, nil
	}
	taken := map[string]bool{"BBBBB": true, "CCCCC": true}

	code, err := generateUnique(gen, func(c string) bool { return taken[c] })
	require.NoError(t, err)
	assert.Equal(t, "DDDDD", code)
	assert.Equal(t, 3, i)
}

func TestGenerateUnique_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	gen := func() (string, error) {
		calls++
		return "BBBBB", nil
	}

	_, err := generateUnique(gen, func(string) bool { return true })
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, MaxAttempts, calls)
}

func TestGenerateUnique_PropagatesSourceError(t *testing.T) {
	boom := errors.New("entropy gone")
	_, err := generateUnique(func() (string, error) { return "", boom }, func(string) bool { return false })
	require.ErrorIs(t, err, boom)
}

func TestValid(t *testing.T) {
	cases := []struct {
		name string
		code string
		want bool
	}{
		{name: "good", code: "BCDFG", want: true},
		{name: "too short", code: "BCDF", want: false},
		{name: "too long", code: "BCDFGH", want: false},
		{name: "vowel", code: "BCDFA", want: false},
		{name: "lowercase", code: "bcdfg", want: false},
		{name: "Y is excluded", code: "BCDFY", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Valid(tc.code))
		})
	}
}
