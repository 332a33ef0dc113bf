package chat

// Message and history limits.
const (
	// Max message content length (runes).
	maxMessageChars = 4000

	// History window bounds. Queries take the newest N and return them
	// re-ordered oldest-first.
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)
