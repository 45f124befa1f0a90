package domain

// Pair is one tradable market listed by an exchange, in the normalized
// "BASE/QUOTE" form used throughout.
type Pair struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
}
