package session

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxQuestionSize caps one user question at 4KB. Questions are prompt
// material; an unbounded one is either an accident or an attack on token
// budgets.
const DefaultMaxQuestionSize = 4096

var (
	ErrQuestionTooLarge = errors.New("question exceeds maximum allowed size")
	ErrInvalidUTF8      = errors.New("question contains invalid UTF-8 sequences")
)

// sanitizeQuestion enforces the size limit, validates UTF-8, and strips
// control characters before a question is seeded into a run. Oversized input
// is rejected rather than truncated so the run never answers half a question.
func sanitizeQuestion(question string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxQuestionSize
	}
	if len(question) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrQuestionTooLarge, len(question), limit)
	}
	if !utf8.ValidString(question) {
		return "", ErrInvalidUTF8
	}

	// ANSI escapes, NUL and friends poison logs and terminals; newline, tab
	// and carriage return stay.
	clean := true
	for _, r := range question {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return question, nil
	}

	var b strings.Builder
	b.Grow(len(question))
	for _, r := range question {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}
