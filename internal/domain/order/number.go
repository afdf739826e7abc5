package order

import "github.com/oklog/ulid/v2"

const numberPrefix = "ORD-"

// NewNumber returns a human-readable order number. ULIDs sort by creation
// time; uniqueness is still enforced by storage.
func NewNumber() string {
	return numberPrefix + ulid.Make().String()
}
