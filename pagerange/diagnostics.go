package pagerange

import (
	"fmt"
	"strings"
)

// Reason explains why a token contributed no page.
type Reason string

const (
	ReasonEmpty      Reason = "empty"        // nothing between two commas
	ReasonMalformed  Reason = "malformed"    // not N or N-M with ASCII digits
	ReasonOutOfRange Reason = "out_of_range" // single page outside [1, pageCount]
	ReasonInverted   Reason = "inverted"     // start > end once clamped to the document
)

// DroppedToken is a token the parser ignored.
type DroppedToken struct {
	Token  string `json:"token"`
	Reason Reason `json:"reason"`
}

// Diagnostics collects tokens dropped by the lenient parser.
type Diagnostics struct {
	Dropped []DroppedToken `json:"dropped,omitempty"`
}

func (d *Diagnostics) drop(tok string, reason Reason) {
	d.Dropped = append(d.Dropped, DroppedToken{Token: tok, Reason: reason})
}

// Clean reports whether every token was used.
func (d *Diagnostics) Clean() bool { return d == nil || len(d.Dropped) == 0 }

// Warnings renders one line per dropped token, for callers that surface them.
func (d *Diagnostics) Warnings() []string {
	if d.Clean() {
		return nil
	}
	out := make([]string, 0, len(d.Dropped))
	for _, t := range d.Dropped {
		out = append(out, fmt.Sprintf("ignored token %q: %s", t.Token, t.Reason))
	}
	return out
}

func (d *Diagnostics) String() string {
	return strings.Join(d.Warnings(), "; ")
}
