package trueque

import "github.com/xraph/trueque/id"

// ID is the primary identifier type for Trueque entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
