// Package plugin defines the plugin lifecycle interface.
package plugin

import "context"

// Plugin is the base interface for sources and reporters.
// Init receives the plugin's raw config block; Start and Stop bracket a run.
type Plugin interface {
	Name() string
	Init(cfg map[string]any) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
