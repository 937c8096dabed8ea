package domain

// CompletionParams are the sampling parameters sent with every completion
// request.
type CompletionParams struct {
	MaxTokens        int
	Temperature      float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Stop             []string
	Stream           bool
}

// DefaultCompletionParams returns the fixed parameter set used for replies.
func DefaultCompletionParams() CompletionParams {
	return CompletionParams{
		MaxTokens:        150,
		Temperature:      0.7,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
		Stop:             []string{"\n"},
		Stream:           false,
	}
}
