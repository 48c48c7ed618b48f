// Package user defines the user aggregate. Counters for numbering and usage
// are embedded on it and are written only through the sequence and usage
// stores.
package user

import (
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/subscription"
	"github.com/xraph/folio/types"
	"github.com/xraph/folio/usage"
)

type User struct {
	types.Entity
	ID           string                                     `json:"id"`
	Email        string                                     `json:"email"`
	Name         string                                     `json:"name"`
	Subscription subscription.Subscription                  `json:"subscription"`
	Usage        usage.Counters                             `json:"usage"`
	Sequences    map[sequence.DocumentType]sequence.Counter `json:"sequences,omitempty"`
}

// Counter returns the numbering state for t, or the never-used state.
func (u *User) Counter(t sequence.DocumentType) sequence.Counter {
	if c, ok := u.Sequences[t]; ok {
		c.UserID = u.ID
		c.Type = t
		return c
	}
	return sequence.NewCounter(u.ID, t)
}
