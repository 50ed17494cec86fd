package llm

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams tunes a single chat completion call. Zero values fall back to
// the client defaults; MaxTokens of 0 leaves the limit unset.
type ChatParams struct {
	Model       string
	MaxTokens   int
	Temperature float32
}
