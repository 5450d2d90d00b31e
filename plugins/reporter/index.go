// Package reporter wires the built-in sources and reporters into the plugin
// registries.
package reporter

import (
	"sync"

	"firestige.xyz/flowanalyzer/internal/source/pcapfile"
	"firestige.xyz/flowanalyzer/internal/source/tshark"
	"firestige.xyz/flowanalyzer/pkg/plugin"
	"firestige.xyz/flowanalyzer/plugins/reporter/console"
	"firestige.xyz/flowanalyzer/plugins/reporter/kafka"
	"firestige.xyz/flowanalyzer/plugins/reporter/sqlite"
)

var registerOnce sync.Once

// RegisterBuiltins registers every built-in plugin. Safe to call repeatedly.
func RegisterBuiltins() {
	registerOnce.Do(func() {
		plugin.RegisterSource(tshark.Name, tshark.NewSource)
		plugin.RegisterSource(pcapfile.Name, pcapfile.NewSource)

		plugin.RegisterReporter(console.Name, console.NewConsoleReporter)
		plugin.RegisterReporter(kafka.Name, kafka.NewKafkaReporter)
		plugin.RegisterReporter(sqlite.Name, sqlite.NewSQLiteReporter)
	})
}
