package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/go-kit/kit/log"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/bgviewer/binggallery/pkg/bing"
)

// Schema kept byte-compatible with the viewer's original datastore so
// an existing local.sqlite keeps working.
const (
	tableName = "table_bgv"

	createTableStmt = `CREATE TABLE IF NOT EXISTS ` + tableName + ` (` +
		`startdate INTEGER PRIMARY KEY, ` +
		`url VARCHAR(1000) NOT NULL, ` +
		`urlbase VARCHAR(1000) NOT NULL, ` +
		`copyright VARCHAR(1000) NOT NULL, ` +
		`copyrightLink VARCHAR(1000) NOT NULL);`

	upsertStmt = `INSERT OR REPLACE INTO ` + tableName + ` VALUES (?, ?, ?, ?, ?);`

	readOneStmt   = `SELECT startdate, url, urlbase, copyright, copyrightLink FROM ` + tableName + ` WHERE startdate = ?;`
	readRangeStmt = `SELECT startdate, url, urlbase, copyright, copyrightLink FROM ` + tableName + ` WHERE startdate >= ? AND startdate <= ? ORDER BY startdate ASC;`
	earliestStmt  = `SELECT startdate FROM ` + tableName + ` ORDER BY startdate ASC LIMIT 1;`
	latestStmt    = `SELECT startdate FROM ` + tableName + ` ORDER BY startdate DESC LIMIT 1;`
)

// junkKeyFloor guards against junk rows: stored keys at or below this
// value never count as the earliest or latest recorded date.
const junkKeyFloor = 10

type sqliteStore struct {
	db     *sql.DB
	logger log.Logger
}

// NewSQLite opens (creating if necessary) the metadata database at
// path and ensures the table exists.
func NewSQLite(path string, logger log.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return nil, errors.Wrap(err, "creating datastore directory")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening datastore at %s", path)
	}
	if _, err := db.Exec(createTableStmt); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "creating tables in datastore at %s", path)
	}
	return &sqliteStore{db: db, logger: logger}, nil
}

func (s *sqliteStore) ReadOne(ctx context.Context, d bing.Date) (bing.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx, readOneStmt, d.Compact())
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return bing.ImageRecord{}, ErrNotFound
	}
	if err != nil {
		return bing.ImageRecord{}, errors.Wrapf(err, "reading record for %s", d)
	}
	return rec, nil
}

func (s *sqliteStore) ReadRange(ctx context.Context, lo, hi bing.Date) ([]bing.ImageRecord, error) {
	l, h := lo.Compact(), hi.Compact()
	if l > h {
		l, h = h, l
	}
	rows, err := s.db.QueryContext(ctx, readRangeStmt, l, h)
	if err != nil {
		return nil, errors.Wrapf(err, "reading records %d..%d", l, h)
	}
	defer rows.Close()

	var records []bing.ImageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning record")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *sqliteStore) EarliestDate(ctx context.Context) (bing.Date, error) {
	return s.boundary(ctx, earliestStmt)
}

func (s *sqliteStore) LatestDate(ctx context.Context) (bing.Date, error) {
	return s.boundary(ctx, latestStmt)
}

func (s *sqliteStore) boundary(ctx context.Context, query string) (bing.Date, error) {
	var key int
	err := s.db.QueryRowContext(ctx, query).Scan(&key)
	if err == sql.ErrNoRows {
		return bing.Date{}, ErrNotFound
	}
	if err != nil {
		return bing.Date{}, errors.Wrap(err, "reading recorded date bound")
	}
	if key <= junkKeyFloor {
		return bing.Date{}, ErrNotFound
	}
	d, err := bing.DateFromCompact(key)
	if err != nil {
		return bing.Date{}, errors.Wrapf(err, "recorded date bound %d", key)
	}
	return d, nil
}

func (s *sqliteStore) SaveAll(ctx context.Context, records []bing.ImageRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning save transaction")
	}
	stmt, err := tx.PrepareContext(ctx, upsertStmt)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "preparing upsert")
	}
	defer stmt.Close()

	for _, rec := range records {
		d, err := rec.Date()
		if err != nil {
			// Malformed dates never reach disk.
			s.logger.Log("warning", "skipping record with invalid date", "startdate", rec.StartDate)
			continue
		}
		if _, err := stmt.ExecContext(ctx, d.Compact(), rec.URL, rec.URLBase, rec.Copyright, rec.CopyrightLink); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "saving record for %s", d)
		}
	}
	return errors.Wrap(tx.Commit(), "committing save transaction")
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scannable) (bing.ImageRecord, error) {
	var key int
	var rec bing.ImageRecord
	if err := row.Scan(&key, &rec.URL, &rec.URLBase, &rec.Copyright, &rec.CopyrightLink); err != nil {
		return bing.ImageRecord{}, err
	}
	d, err := bing.DateFromCompact(key)
	if err != nil {
		return bing.ImageRecord{}, err
	}
	rec.StartDate = d.CompactString()
	return rec, nil
}
