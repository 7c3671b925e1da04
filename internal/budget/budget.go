// Package budget provides token budget estimation and context trimming for
// the answer step. Because notion-llm supports several chat backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// It fits 8k-context models (Llama 3 8B, GPT-3.5) with room for the output.
	DefaultMaxContextTokens = 6000

	// messageOverhead is the per-message token cost most chat APIs add.
	messageOverhead = 4
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitSections returns the longest prefix of sections that, together with
// fixed, fits within maxTokens. sections are ranked best first, so the
// lowest-ranked ones are dropped. fixed messages are never dropped; when they
// alone exceed the budget the result is empty.
func FitSections(fixed []*schema.Message, sections []string, maxTokens int) []string {
	used := EstimateMessages(fixed)
	for i, s := range sections {
		used += Estimate(s)
		if used > maxTokens {
			return sections[:i]
		}
	}
	return sections
}

// Truncate cuts s to at most maxTokens estimated tokens, on a byte boundary
// that does not split a UTF-8 sequence.
func Truncate(s string, maxTokens int) string {
	limit := maxTokens * charsPerToken
	if maxTokens <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	// Back off to the start of a rune.
	for limit > 0 && s[limit]&0xC0 == 0x80 {
		limit--
	}
	return s[:limit]
}
