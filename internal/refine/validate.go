package refine

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Result is the outcome of one refinement pass. Text is final and ready for
// insertion on both paths; Fallback exists so callers can log and count
// degradations, never to branch on content handling.
type Result struct {
	// Text is the final text.
	Text string

	// Fallback reports that Text came from the rule-based path (AI
	// disabled, or AI output rejected) rather than accepted AI output.
	Fallback bool
}

// sanitizePrefixes are assistant-style lead-ins stripped from model output
// before validation. Order matters: compound prefixes come before the short
// forms they contain, so sequential stripping unwraps nested lead-ins.
var sanitizePrefixes = []string{
	"Here's the refined text:",
	"Here is the refined text:",
	"Refined text:",
	"Refined:",
	"Output:",
	"Result:",
	"Corrected text:",
	"Here's the corrected text:",
	"Here is the corrected text:",
}

// refusalPhrases flag output where the model answered the dictation as if it
// were a conversation. Any case-insensitive substring hit rejects the
// output. All entries must be lowercase.
var refusalPhrases = []string{
	// Apologies and refusals.
	"i'm sorry",
	"i am sorry",
	"i apologize",
	"i cannot",
	"i can't",
	"i can not",
	"i'm unable",
	"i am unable",
	"i'm not able",
	"i am not able",
	"sorry, i",
	"sorry i",
	"apologies,",
	"my apologies",
	"unfortunately,",
	"unfortunately i",
	"regrettably",

	// Assistant-style responses.
	"as an ai",
	"as a language model",
	"as an assistant",
	"i don't have the ability",
	"i do not have the ability",
	"i'm here to help",
	"i am here to help",
	"how can i help",
	"how may i help",
	"how can i assist",
	"how may i assist",
	"i'd be happy to",
	"i would be happy to",
	"i'll help you",
	"i will help you",
	"let me help",
	"let me assist",
	"sure, i can",
	"sure, i'd",
	"sure, i would",
	"certainly!",
	"of course!",
	"absolutely!",
	"sure thing",

	// Explanations and meta-commentary.
	"here's the refined",
	"here is the refined",
	"the refined text",
	"refined version",
	"corrected version",
	"here's the corrected",
	"here is the corrected",
	"i've refined",
	"i have refined",
	"i've corrected",
	"i have corrected",
	"note:",
	"note that",
	"please note",
	"it seems like",
	"it appears that",
	"based on your",
	"based on the",
	"i understand you",
	"i see that you",

	// Capability and content refusals.
	"i can't assist with",
	"i cannot assist with",
	"i'm not able to help with",
	"i won't be able to",
	"i will not be able to",
	"that's not something i",
	"that is not something i",
	"i'm designed to",
	"i am designed to",
	"my purpose is",
	"i'm programmed to",
	"i am programmed to",
	"against my guidelines",
	"violates my",
	"goes against my",
	"outside my capabilities",
	"beyond my capabilities",
	"not within my",
	"inappropriate",
	"harmful content",
	"offensive content",
}

// assistantOpeners are leading phrases that suggest a conversational reply.
// Alone they are weak evidence, since plenty of legitimate dictation starts
// with "I ", so rejection additionally requires a colon in the text, the
// usual marker of an explanatory aside.
var assistantOpeners = []string{
	"i ",
	"sure",
	"certainly",
	"of course",
	"absolutely",
	"hello",
	"hi ",
	"hey ",
	"thank you",
	"thanks for",
}

// Validate decides whether AI output is a legitimate refinement of raw.
// Accepted output is returned sanitized and otherwise unchanged; rejected
// output is replaced by the rule-cleaned raw text, so the result is always
// usable and never empty for non-empty raw.
func Validate(candidate, raw string) Result {
	sanitized := sanitizeOutput(candidate)

	if isRefusal(sanitized) {
		slog.Debug("refine: ai output rejected as conversational", "output", sanitized)
		return Result{Text: cleanupRaw(raw), Fallback: true}
	}

	// A response much longer than the dictation means the model elaborated
	// instead of cleaning. Very short inputs are exempt: "thanks" -> "Thank
	// you very much." is a legitimate rewrite at that size.
	inWords := len(strings.Fields(raw))
	outWords := len(strings.Fields(sanitized))
	if outWords > inWords*2 && inWords > 3 {
		slog.Debug("refine: ai output rejected as runaway elaboration",
			"input_words", inWords,
			"output_words", outWords,
		)
		return Result{Text: cleanupRaw(raw), Fallback: true}
	}

	return Result{Text: sanitized}
}

// sanitizeOutput strips known assistant prefixes (case-insensitive) and one
// layer of matching surrounding quotes.
func sanitizeOutput(text string) string {
	result := strings.TrimSpace(text)
	for _, prefix := range sanitizePrefixes {
		if len(result) >= len(prefix) && strings.EqualFold(result[:len(prefix)], prefix) {
			result = strings.TrimSpace(result[len(prefix):])
		}
	}
	if len(result) > 2 {
		first, last := result[0], result[len(result)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			result = strings.TrimSpace(result[1 : len(result)-1])
		}
	}
	return result
}

// isRefusal reports whether text reads like an assistant reply instead of
// refined dictation.
func isRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	trimmed := strings.TrimSpace(lower)
	for _, opener := range assistantOpeners {
		if strings.HasPrefix(trimmed, opener) {
			return strings.Contains(text, ":")
		}
	}
	return false
}

// cleanupRaw is the rule-based fallback applied to the original text when AI
// output is rejected: trim, capitalize the first letter, terminate with a
// period unless sentence punctuation already ends the text.
func cleanupRaw(text string) string {
	result := strings.TrimSpace(text)
	if result == "" {
		return result
	}

	r, size := utf8.DecodeRuneInString(result)
	if unicode.IsLower(r) {
		result = string(unicode.ToUpper(r)) + result[size:]
	}

	last, _ := utf8.DecodeLastRuneInString(result)
	switch last {
	case '.', '!', '?', ',', ';', ':':
	default:
		result += "."
	}
	return result
}
