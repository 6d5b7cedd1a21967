package testutil

import (
	"github.com/skosovsky/toolloop"
)

// NewTestRegistry returns a Registry holding tools with panic recovery applied,
// suitable as a supplementary tool source in tests.
func NewTestRegistry(tools ...toolloop.Tool) *toolloop.Registry {
	reg := toolloop.NewRegistry(tools...)
	reg.Use(toolloop.WithRecovery())
	return reg
}
