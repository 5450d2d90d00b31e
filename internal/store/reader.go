package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"firestige.xyz/flowanalyzer/internal/core"
)

// Request is a stored request message.
type Request struct {
	FrameNumber uint64
	Header      []byte
	FileData    []byte
	FullURI     string
	TimeEpoch   core.Field[time.Time]
}

// Response is a stored response message.
type Response struct {
	FrameNumber uint64
	Header      []byte
	FileData    []byte
	TimeEpoch   core.Field[time.Time]
	RequestIn   core.Field[uint64]
	StatusCode  core.Field[int]
}

// Pair is a request with its response. Either side may be nil but not both.
type Pair struct {
	Request  *Request
	Response *Response
}

// Reader queries a finished database.
type Reader struct {
	db *sql.DB
}

// Open opens an existing database for queries.
func Open(ctx context.Context, dbPath string) (*Reader, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrStoreMissing, dbPath)
	}
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = 1"); err != nil {
		db.Close()
		return nil, fmt.Errorf("query_only: %w", err)
	}
	return &Reader{db: db}, nil
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}

const pairQuery = `
SELECT req.frame_num, req.header, req.file_data, req.full_uri, req.time_epoch,
       resp.frame_num, resp.header, resp.file_data, resp.time_epoch, resp.request_in, resp.status_code
FROM requests req
LEFT JOIN responses resp ON req.frame_num = resp.request_in
ORDER BY req.frame_num ASC, resp.frame_num ASC`

const orphanQuery = `
SELECT frame_num, header, file_data, time_epoch, request_in, status_code
FROM responses
WHERE request_in IS NULL OR request_in NOT IN (SELECT frame_num FROM requests)
ORDER BY frame_num ASC`

// Pairs calls fn for every request in frame order, joined with each of its
// responses, then for every response whose request is not stored.
func (r *Reader) Pairs(ctx context.Context, fn func(Pair) error) error {
	rows, err := r.db.QueryContext(ctx, pairQuery)
	if err != nil {
		return fmt.Errorf("query pairs: %w", err)
	}
	for rows.Next() {
		var (
			req                      Request
			reqEpoch                 sql.NullFloat64
			respFrame, respRequestIn sql.NullInt64
			respHeader, respBody     []byte
			respEpoch                sql.NullFloat64
			respStatus               sql.NullInt64
			uri                      sql.NullString
		)
		if err := rows.Scan(&req.FrameNumber, &req.Header, &req.FileData, &uri, &reqEpoch,
			&respFrame, &respHeader, &respBody, &respEpoch, &respRequestIn, &respStatus); err != nil {
			rows.Close()
			return fmt.Errorf("scan pair: %w", err)
		}
		req.FullURI = uri.String
		req.TimeEpoch = epochField(reqEpoch)

		p := Pair{Request: &req}
		if respFrame.Valid {
			p.Response = &Response{
				FrameNumber: uint64(respFrame.Int64),
				Header:      respHeader,
				FileData:    respBody,
				TimeEpoch:   epochField(respEpoch),
				RequestIn:   uintField(respRequestIn),
				StatusCode:  intField(respStatus),
			}
		}
		if err := fn(p); err != nil {
			rows.Close()
			return err
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate pairs: %w", err)
	}

	rows, err = r.db.QueryContext(ctx, orphanQuery)
	if err != nil {
		return fmt.Errorf("query orphan responses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			resp      Response
			epoch     sql.NullFloat64
			requestIn sql.NullInt64
			status    sql.NullInt64
		)
		if err := rows.Scan(&resp.FrameNumber, &resp.Header, &resp.FileData, &epoch, &requestIn, &status); err != nil {
			return fmt.Errorf("scan orphan response: %w", err)
		}
		resp.TimeEpoch = epochField(epoch)
		resp.RequestIn = uintField(requestIn)
		resp.StatusCode = intField(status)
		if err := fn(Pair{Response: &resp}); err != nil {
			return err
		}
	}
	return rows.Err()
}

func epochField(v sql.NullFloat64) core.Field[time.Time] {
	if !v.Valid {
		return core.None[time.Time]()
	}
	sec := int64(v.Float64)
	nsec := int64((v.Float64 - float64(sec)) * float64(time.Second))
	return core.Some(time.Unix(sec, nsec))
}

func uintField(v sql.NullInt64) core.Field[uint64] {
	if !v.Valid {
		return core.None[uint64]()
	}
	return core.Some(uint64(v.Int64))
}

func intField(v sql.NullInt64) core.Field[int] {
	if !v.Valid {
		return core.None[int]()
	}
	return core.Some(int(v.Int64))
}
