package domain

import "github.com/oklog/ulid/v2"

// NewID returns a time-sortable identifier. It is 26 alphanumeric
// characters, which also satisfies the venue's client order id format.
func NewID() string {
	return ulid.Make().String()
}
