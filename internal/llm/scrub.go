package llm

import "strings"

// Special tokens some chat models leak into their decoded output.
const (
	extraToken = "<|extra_0|>"
	eosToken   = "<|eos|>"
	startToken = "<|startoftext|>"
)

// Scrub strips model special tokens from a response. When the answer is
// wrapped in an extra_0 window, only the window content is kept; otherwise
// start-of-text and end-of-sequence tokens are removed wherever they appear.
func Scrub(s string) string {
	start := strings.Index(s, extraToken)
	if start >= 0 {
		start += len(extraToken)

		end := strings.Index(s, eosToken)
		if end < 0 {
			return s[start:]
		}

		if end < start {
			return ""
		}

		return s[start:end]
	}

	s = strings.ReplaceAll(s, startToken, "")

	return strings.ReplaceAll(s, eosToken, "")
}
