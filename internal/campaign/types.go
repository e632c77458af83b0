// Package campaign owns the single mutable campaign configuration and the
// engine facade that arbitrates operator actions over it.
package campaign

import (
	"errors"
	"time"
)

// ErrUnauthorized rejects any actor other than the designated operator.
var ErrUnauthorized = errors.New("actor is not the operator")

// ErrUnknownRecipient rejects selections referencing ids outside the roster.
var ErrUnknownRecipient = errors.New("unknown recipient id")

// Config is the campaign configuration. Exactly one instance exists per
// process, guarded by the Store.
//
// Selection semantics: nil means "everyone in the roster" (the default);
// an empty, non-nil set means "nobody", the state reached by deselecting
// everyone. The two are never conflated.
type Config struct {
	Selection   map[string]struct{}
	Template    string
	ScheduledAt *time.Time
}

// SelectionAll reports whether the selection means "everyone".
func (c Config) SelectionAll() bool { return c.Selection == nil }

func copySelection(in map[string]struct{}) map[string]struct{} {
	if in == nil {
		return nil
	}
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
