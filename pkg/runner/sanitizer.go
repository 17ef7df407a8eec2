package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Learner questions end up in the AI prompt and in every transcript view, so the
// same rules apply to the terminal chat, the HTTP ask route and the MCP ask tool.
var (
	// DefaultMaxInputSize is the question limit in bytes when nothing is configured.
	DefaultMaxInputSize = 4096
	// EnvMaxInputSize names the variable that overrides DefaultMaxInputSize.
	EnvMaxInputSize = "DOUBTFLOW_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// SanitizeInput checks a learner question against MaxInputSize.
// See SanitizeInputLimit.
func SanitizeInput(input string) (string, error) {
	return SanitizeInputLimit(input, MaxInputSize())
}

// SanitizeInputLimit prepares a learner question for the transcript and the AI prompt.
//
// Questions longer than limit bytes are refused with ErrInputTooLarge; the learner is
// asked to rephrase rather than having the end of the question cut off. Invalid UTF-8
// is refused with ErrInvalidUTF8. Terminal escapes and other control characters are
// removed so a pasted question cannot repaint another learner's screen; line breaks
// and tabs are kept because multi-line questions are common.
func SanitizeInputLimit(input string, limit int) (string, error) {
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}
	if strings.IndexFunc(input, unwanted) < 0 {
		return input, nil
	}
	return strings.Map(func(r rune) rune {
		if unwanted(r) {
			return -1
		}
		return r
	}, input), nil
}

func unwanted(r rune) bool {
	switch r {
	case '\n', '\t', '\r':
		return false
	}
	return unicode.IsControl(r)
}

// MaxInputSize is the limit used when no explicit one is given:
// DOUBTFLOW_MAX_INPUT_SIZE when it holds a positive number, otherwise DefaultMaxInputSize.
func MaxInputSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxInputSize
}

// inputLimit returns n, or MaxInputSize when n is not positive.
func inputLimit(n int) int {
	if n > 0 {
		return n
	}
	return MaxInputSize()
}
