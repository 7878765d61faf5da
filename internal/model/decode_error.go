package model

// DecodeError records why an input line could not be turned into a typed
// event. Line is the 1-based line number in the input file.
type DecodeError struct {
	LogRef
	Line   int    `json:"line"`
	Topic0 string `json:"topic0,omitempty"`
	Error  string `json:"error"`
}
