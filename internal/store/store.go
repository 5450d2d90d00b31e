// Package store keeps extracted HTTP records in a SQLite file next to the
// capture, so that request/response pairs can be queried without re-running
// the dissector.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"firestige.xyz/flowanalyzer/internal/config"
	"firestige.xyz/flowanalyzer/internal/log"
)

const driverName = "sqlite"

// DefaultBatchSize is the number of rows committed per transaction.
const DefaultBatchSize = 5000

// mtimeTolerance is how far the recorded capture mtime may drift.
const mtimeTolerance = 0.1

const schema = `
CREATE TABLE requests (frame_num INTEGER PRIMARY KEY, header BLOB, file_data BLOB, full_uri TEXT, time_epoch REAL);
CREATE TABLE responses (frame_num INTEGER PRIMARY KEY, header BLOB, file_data BLOB, time_epoch REAL, request_in INTEGER, status_code INTEGER);
CREATE TABLE meta_info (id INTEGER PRIMARY KEY, filter TEXT, pcap_path TEXT, pcap_mtime REAL, pcap_size INTEGER);
`

// Meta identifies the capture and filter a database was built from.
type Meta struct {
	Filter    string
	PcapPath  string
	PcapMtime float64 // seconds since epoch
	PcapSize  int64
}

// MetaFor stats the capture file and describes it.
func MetaFor(pcapPath string, filter config.Filter) (Meta, error) {
	abs, err := filepath.Abs(pcapPath)
	if err != nil {
		return Meta{}, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return Meta{}, err
	}
	return Meta{
		Filter:    filter.String(),
		PcapPath:  abs,
		PcapMtime: float64(fi.ModTime().UnixNano()) / float64(time.Second),
		PcapSize:  fi.Size(),
	}, nil
}

// DefaultPath returns <capture dir>/<capture base name without extension>.db.
func DefaultPath(pcapPath string) string {
	abs, err := filepath.Abs(pcapPath)
	if err != nil {
		abs = pcapPath
	}
	base := filepath.Base(abs)
	return filepath.Join(filepath.Dir(abs), strings.TrimSuffix(base, filepath.Ext(base))+".db")
}

func open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Valid reports whether dbPath holds a finished extraction of pcapPath
// under the same filter, with the capture unchanged since.
func Valid(ctx context.Context, dbPath, pcapPath string, filter config.Filter) bool {
	logger := log.GetLogger().WithField("db", dbPath)

	fi, err := os.Stat(dbPath)
	if err != nil || fi.Size() == 0 {
		return false
	}
	cur, err := MetaFor(pcapPath, filter)
	if err != nil {
		logger.WithError(err).Debug("cannot stat capture")
		return false
	}

	db, err := open(dbPath)
	if err != nil {
		return false
	}
	defer db.Close()

	var cached Meta
	row := db.QueryRowContext(ctx, "SELECT filter, pcap_mtime, pcap_size FROM meta_info LIMIT 1")
	if err := row.Scan(&cached.Filter, &cached.PcapMtime, &cached.PcapSize); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.WithError(err).Warn("cache check failed, rebuilding")
		}
		return false
	}

	if cached.Filter != cur.Filter || cached.PcapSize != cur.PcapSize ||
		math.Abs(cached.PcapMtime-cur.PcapMtime) >= mtimeTolerance {
		logger.WithField("cached_filter", cached.Filter).WithField("filter", cur.Filter).
			Debug("cache is stale")
		return false
	}
	return true
}
