package chunk

// DefaultCharsPerToken is the fixed characters-per-estimated-token ratio.
// Real tokenizers average close to four characters per token on code.
const DefaultCharsPerToken = 4

// DefaultMaxTokensPerChunk is the default per-chunk token budget.
const DefaultMaxTokensPerChunk = 12000

// Budget expresses the token budget for one analysis call.
type Budget struct {
	CharsPerToken     int
	MaxTokensPerChunk int
}

// DefaultBudget returns the default chunking budget.
func DefaultBudget() Budget {
	return Budget{
		CharsPerToken:     DefaultCharsPerToken,
		MaxTokensPerChunk: DefaultMaxTokensPerChunk,
	}
}

func (b Budget) normalized() Budget {
	if b.CharsPerToken <= 0 {
		b.CharsPerToken = DefaultCharsPerToken
	}
	if b.MaxTokensPerChunk <= 0 {
		b.MaxTokensPerChunk = DefaultMaxTokensPerChunk
	}
	return b
}

// MaxChars is the chunk budget expressed as a character count.
func (b Budget) MaxChars() int {
	b = b.normalized()
	return b.CharsPerToken * b.MaxTokensPerChunk
}

// EstimateTokens estimates the token count of text.
func (b Budget) EstimateTokens(text string) int {
	b = b.normalized()
	if text == "" {
		return 0
	}
	return (len(text) + b.CharsPerToken - 1) / b.CharsPerToken
}

// Fits reports whether text fits a single analysis call. Callers should
// bypass the chunk pipeline entirely when it does.
func (b Budget) Fits(text string) bool {
	return len(text) <= b.MaxChars()
}
