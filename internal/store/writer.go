package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"firestige.xyz/flowanalyzer/internal/core"
	"firestige.xyz/flowanalyzer/internal/record"
)

// Writer bulk-loads records into a fresh database.
type Writer struct {
	db        *sql.DB
	tx        *sql.Tx
	reqStmt   *sql.Stmt
	repStmt   *sql.Stmt
	pending   int
	batchSize int

	Requests  uint64
	Responses uint64
}

// Create replaces any file at dbPath with an empty database.
func Create(ctx context.Context, dbPath string, batchSize int) (*Writer, error) {
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove old database: %w", err)
	}
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{"PRAGMA synchronous = OFF", "PRAGMA journal_mode = MEMORY"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Writer{db: db, batchSize: batchSize}, nil
}

func (w *Writer) begin(ctx context.Context) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	w.reqStmt, err = tx.PrepareContext(ctx, "INSERT OR REPLACE INTO requests VALUES (?,?,?,?,?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare requests insert: %w", err)
	}
	w.repStmt, err = tx.PrepareContext(ctx, "INSERT OR REPLACE INTO responses VALUES (?,?,?,?,?,?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare responses insert: %w", err)
	}
	w.tx = tx
	return nil
}

// Commit writes the current batch. It does not make the database Valid.
func (w *Writer) Commit() error {
	if w.tx == nil {
		return nil
	}
	err := w.tx.Commit()
	w.tx, w.reqStmt, w.repStmt = nil, nil, nil
	w.pending = 0
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func epoch(f core.Field[time.Time]) any {
	if ts, ok := f.Get(); ok {
		return float64(ts.UnixNano()) / float64(time.Second)
	}
	return nil
}

// Insert stores a request or response record. Data records are ignored.
func (w *Writer) Insert(ctx context.Context, rec *core.OutputRecord) error {
	if rec.Type == core.RecordData {
		return nil
	}
	header, err := record.Decode(rec.HeaderHex)
	if err != nil {
		return fmt.Errorf("frame %d header: %w", rec.FrameNumber, err)
	}
	body, err := record.Decode(rec.BodyHex)
	if err != nil {
		return fmt.Errorf("frame %d body: %w", rec.FrameNumber, err)
	}

	if w.tx == nil {
		if err := w.begin(ctx); err != nil {
			return err
		}
	}

	if rec.Type == core.RecordRequest {
		_, err = w.reqStmt.ExecContext(ctx, rec.FrameNumber, header, body, rec.URIOrCode, epoch(rec.TimeEpoch))
		w.Requests++
	} else {
		var requestIn any
		if ref, ok := rec.RequestIn.Get(); ok {
			requestIn = ref
		}
		var status any
		if code, convErr := strconv.Atoi(rec.URIOrCode); convErr == nil {
			status = code
		}
		_, err = w.repStmt.ExecContext(ctx, rec.FrameNumber, header, body, epoch(rec.TimeEpoch), requestIn, status)
		w.Responses++
	}
	if err != nil {
		return fmt.Errorf("insert frame %d: %w", rec.FrameNumber, err)
	}

	w.pending++
	if w.pending >= w.batchSize {
		return w.Commit()
	}
	return nil
}

// Finish commits outstanding rows, indexes responses and records meta.
// Until Finish succeeds the database is not Valid.
func (w *Writer) Finish(ctx context.Context, meta Meta) error {
	if err := w.Commit(); err != nil {
		return err
	}
	if _, err := w.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_resp_req_in ON responses(request_in)"); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if _, err := w.db.ExecContext(ctx, "DELETE FROM meta_info"); err != nil {
		return fmt.Errorf("clear meta: %w", err)
	}
	_, err := w.db.ExecContext(ctx,
		"INSERT INTO meta_info (filter, pcap_path, pcap_mtime, pcap_size) VALUES (?, ?, ?, ?)",
		meta.Filter, meta.PcapPath, meta.PcapMtime, meta.PcapSize)
	if err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}

// Close releases the database. Uncommitted rows are rolled back.
func (w *Writer) Close() error {
	if w.tx != nil {
		w.tx.Rollback()
		w.tx = nil
	}
	return w.db.Close()
}
