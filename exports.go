package trueque

import "github.com/xraph/trueque/types"

// Re-export common types for convenience so users don't have to import types package.

// Credits is re-exported from types package.
type Credits = types.Credits

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Credits constructors
var (
	IX                 = types.IX
	Sum                = types.Sum
	DefaultCreditLimit = types.DefaultCreditLimit
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
