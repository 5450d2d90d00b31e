// Package plugin defines plugin interfaces.
package plugin

import (
	"context"

	"firestige.xyz/flowanalyzer/internal/core"
)

// PacketFunc is invoked once per matched packet. The field set is only valid
// for the duration of the call.
type PacketFunc func(fs *core.FieldSet) error

// Source wraps a capture/dissection engine.
// Run delivers packets synchronously and in capture order until the capture
// ends, ctx is cancelled, or fn returns an error.
type Source interface {
	Plugin
	Run(ctx context.Context, fn PacketFunc) error
}
