// Package plugin defines plugin interfaces.
package plugin

import (
	"context"

	"firestige.xyz/flowanalyzer/internal/core"
)

// Reporter sends output records to a downstream sink.
type Reporter interface {
	Plugin
	Report(ctx context.Context, rec *core.OutputRecord) error
	Flush(ctx context.Context) error
}

// Finisher is implemented by reporters whose output is only complete once
// the whole capture was processed. Finish runs after Flush, and only when
// the source finished without error.
type Finisher interface {
	Finish(ctx context.Context) error
}
