// Package adapter provides the database adapter registry and the shared
// database/sql implementation used by concrete adapters.
//
// The Adapter contract itself lives in pkg/core. Concrete adapters are in
// pkg/adapters/ subdirectories and register themselves from init().
package adapter

import (
	"github.com/leapstack-labs/leaprules/pkg/core"
)

type (
	// Adapter is the queryable store rule SQL runs against.
	Adapter = core.Adapter

	// Config is the connection configuration for an adapter.
	Config = core.AdapterConfig
)
