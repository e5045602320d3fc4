package types

// Event is a typed record of a state change emitted by the native engines.
// Attributes hold a flat string view of the affected entity for indexers.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
