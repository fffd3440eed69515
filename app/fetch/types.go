package fetch

import (
	"webnotify/app/source"
)

// Result is the outcome of a single successful fetch. For rendered
// fetches ShortHTML holds the early snapshot taken before client-side
// scripts settle; it is empty for plain HTTP fetches.
type Result struct {
	Mode        source.Mode
	HTML        string
	ShortHTML   string
	Fingerprint source.Fingerprint

	// NotModified is set when the server answered 304 to a conditional
	// request. HTML is empty and the prior fingerprint is carried over.
	NotModified bool
}
