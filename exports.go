package folio

import (
	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/types"
)

// Re-export common types for convenience so users don't have to import the
// types and audit packages for everyday calls.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Actor is re-exported from audit package.
type Actor = audit.Actor

// Re-export Money constructors
var (
	EUR  = types.EUR
	Zero = types.Zero
	Sum  = types.Sum
)

// SystemActor is the actor background jobs act as.
var SystemActor = audit.System
