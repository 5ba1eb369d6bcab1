//go:build tools

package tools

// Tool dependencies tracked so `go run` uses the pinned version.
// Run: go run github.com/vektra/mockery/v2 (from the repo root) to regenerate mocks.
import (
	_ "github.com/vektra/mockery/v2"
)
