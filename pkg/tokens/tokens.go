// Package tokens provides token counting for context budgeting.
//
// Budget arithmetic uses the cheap character heuristic so results are
// deterministic and provider-independent; the tiktoken counter is for
// reporting where accuracy matters more than stability.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	// tokenEncoder is the global tiktoken encoder
	tokenEncoder *tiktoken.Tiktoken
	encoderOnce  sync.Once
	encoderErr   error
)

// initTokenEncoder initializes the tiktoken encoder (lazy initialization)
func initTokenEncoder() error {
	encoderOnce.Do(func() {
		// cl100k_base covers GPT-4, GPT-3.5-turbo, text-embedding-ada-002
		tokenEncoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoderErr
}

// Estimate returns the heuristic token count: one token per four
// characters, rounded up. Non-empty text always estimates at least 1.
func Estimate(text string) int {
	return (len(text) + 3) / 4
}

// Count counts tokens using tiktoken, falling back to Estimate when the
// encoder is unavailable.
func Count(text string) int {
	if err := initTokenEncoder(); err != nil {
		return Estimate(text)
	}

	return len(tokenEncoder.Encode(text, nil, nil))
}
