package offline

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/LaPingvino/offlinecache/internal/logging"
)

// schemaVersion is the compiled-in SQLite user_version. Bumping it forces
// every existing database to be recreated on next open.
const schemaVersion = 1

const schemaDDL = `
CREATE TABLE resources (
	kind INTEGER NOT NULL,
	url TEXT NOT NULL,
	data BLOB,
	modified INTEGER,
	expires INTEGER,
	etag TEXT,
	error_reason INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	PRIMARY KEY (kind, url)
);
CREATE TABLE tiles (
	url_template TEXT NOT NULL,
	pixel_ratio INTEGER NOT NULL,
	z INTEGER NOT NULL,
	x INTEGER NOT NULL,
	y INTEGER NOT NULL,
	data BLOB,
	modified INTEGER,
	expires INTEGER,
	etag TEXT,
	error_reason INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	PRIMARY KEY (url_template, pixel_ratio, z, x, y)
);
CREATE TABLE regions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	definition BLOB NOT NULL,
	metadata BLOB
);
CREATE TABLE region_resources (
	region_id INTEGER NOT NULL,
	kind INTEGER NOT NULL,
	url TEXT NOT NULL,
	PRIMARY KEY (region_id, kind, url)
);
CREATE TABLE region_tiles (
	region_id INTEGER NOT NULL,
	url_template TEXT NOT NULL,
	pixel_ratio INTEGER NOT NULL,
	z INTEGER NOT NULL,
	x INTEGER NOT NULL,
	y INTEGER NOT NULL,
	PRIMARY KEY (region_id, url_template, pixel_ratio, z, x, y)
);
`

// Store is the persistent resources+tiles+regions cache, backed by an
// embedded SQLite database. Every method is safe to call only from the
// single goroutine that owns it (see internal/offline/worker.go); Store
// itself does no locking.
type Store struct {
	db    *sql.DB
	log   *logging.Logger
	stmts *lru.Cache[string, *sql.Stmt]
}

// OpenStore opens (or creates) the database at path. path may be ":memory:"
// for an ephemeral store. A missing file, an unreadable file, or a schema
// version mismatch all cause the store to delete and rebuild the database,
// logging one Warning.
func OpenStore(path string) (*Store, error) {
	log := logging.GetModuleLogger("offline").Module("store")

	db, err := openAndCheckSchema(path, log)
	if err != nil {
		return nil, err
	}

	stmts, err := lru.NewWithEvict[string, *sql.Stmt](64, func(_ string, stmt *sql.Stmt) {
		stmt.Close()
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("allocating prepared statement cache: %w", err)
	}

	return &Store{db: db, log: log, stmts: stmts}, nil
}

func openAndCheckSchema(path string, log *logging.Logger) (*sql.DB, error) {
	db, openErr := sql.Open("sqlite3", path)
	needsRecreate := openErr != nil
	if openErr == nil {
		var version int
		if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil || version != schemaVersion {
			needsRecreate = true
		}
	}
	if !needsRecreate {
		return db, nil
	}

	log.Warning("Removing existing incompatible offline database")
	if db != nil {
		db.Close()
	}
	if path != "" && path != ":memory:" {
		_ = os.Remove(path)
	}

	fresh, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening offline database: %w", err)
	}
	if _, err := fresh.Exec(schemaDDL); err != nil {
		fresh.Close()
		return nil, fmt.Errorf("creating offline schema: %w", err)
	}
	if _, err := fresh.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		fresh.Close()
		return nil, fmt.Errorf("setting offline schema version: %w", err)
	}
	return fresh, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) prepared(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmts.Get(query); ok {
		return stmt, nil
	}
	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	s.stmts.Add(query, stmt)
	return stmt, nil
}

// Get returns the cached Response for r, or nil on a miss. Any SQL failure
// is logged and reported to the caller as a miss, per the store's
// local-recovery error policy.
func (s *Store) Get(r Resource) *Response {
	if r.Kind == KindTile && r.Tile != nil {
		return s.getTile(*r.Tile)
	}
	return s.getResource(r.Kind, r.URL)
}

// Put persists resp under r, unless resp carries a transient network error
// (Connection/Server), in which case it is silently dropped: caching a
// transient failure would poison future lookups. Any SQL failure is logged
// and swallowed; a cache write the caller cannot retry must not propagate.
// A response with neither data nor error (a "not modified" revalidation)
// updates the freshness fields and keeps the payload already cached for r.
func (s *Store) Put(r Resource, resp Response) {
	if !resp.Cacheable() {
		return
	}
	if resp.Error == nil && resp.Data == nil {
		if existing := s.Get(r); existing != nil && existing.Error == nil {
			resp.Data = existing.Data
		}
	}
	if r.Kind == KindTile && r.Tile != nil {
		s.putTile(*r.Tile, resp)
		return
	}
	s.putResource(r.Kind, r.URL, resp)
}

// GetRegionResource behaves like Get but additionally marks the resource as
// required by regionID.
func (s *Store) GetRegionResource(regionID int64, r Resource) *Response {
	s.markRegionResource(regionID, r)
	return s.Get(r)
}

// PutRegionResource behaves like Put but additionally marks the resource as
// required by regionID.
func (s *Store) PutRegionResource(regionID int64, r Resource, resp Response) {
	s.markRegionResource(regionID, r)
	s.Put(r, resp)
}

func (s *Store) markRegionResource(regionID int64, r Resource) {
	if r.Kind == KindTile && r.Tile != nil {
		stmt, err := s.prepared(`INSERT OR IGNORE INTO region_tiles (region_id, url_template, pixel_ratio, z, x, y) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			s.log.Error("prepare mark region tile: %v", err)
			return
		}
		if _, err := stmt.Exec(regionID, r.Tile.URLTemplate, r.Tile.PixelRatio, r.Tile.Z, r.Tile.X, r.Tile.Y); err != nil {
			s.log.Error("mark region tile: %v", err)
		}
		return
	}

	stmt, err := s.prepared(`INSERT OR IGNORE INTO region_resources (region_id, kind, url) VALUES (?, ?, ?)`)
	if err != nil {
		s.log.Error("prepare mark region resource: %v", err)
		return
	}
	if _, err := stmt.Exec(regionID, int(r.Kind), r.URL); err != nil {
		s.log.Error("mark region resource: %v", err)
	}
}

func (s *Store) getResource(kind Kind, url string) *Response {
	stmt, err := s.prepared(`SELECT data, modified, expires, etag, error_reason, error_message FROM resources WHERE kind = ? AND url = ?`)
	if err != nil {
		s.log.Error("prepare get resource: %v", err)
		return nil
	}
	resp, err := scanResponse(stmt.QueryRow(int(kind), url))
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		s.log.Error("get resource %s: %v", url, err)
		return nil
	}
	return resp
}

func (s *Store) putResource(kind Kind, url string, resp Response) {
	stmt, err := s.prepared(`
		INSERT INTO resources (kind, url, data, modified, expires, etag, error_reason, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, url) DO UPDATE SET
			data = excluded.data, modified = excluded.modified, expires = excluded.expires,
			etag = excluded.etag, error_reason = excluded.error_reason, error_message = excluded.error_message
	`)
	if err != nil {
		s.log.Error("prepare put resource: %v", err)
		return
	}
	reason, message := errorColumns(resp)
	if _, err := stmt.Exec(int(kind), url, resp.Data, nullableTime(resp.Modified), nullableTime(resp.Expires), nullableString(resp.Etag), reason, message); err != nil {
		s.log.Error("put resource %s: %v", url, err)
	}
}

func (s *Store) getTile(coord TileCoord) *Response {
	stmt, err := s.prepared(`SELECT data, modified, expires, etag, error_reason, error_message FROM tiles WHERE url_template = ? AND pixel_ratio = ? AND z = ? AND x = ? AND y = ?`)
	if err != nil {
		s.log.Error("prepare get tile: %v", err)
		return nil
	}
	resp, err := scanResponse(stmt.QueryRow(coord.URLTemplate, coord.PixelRatio, coord.Z, coord.X, coord.Y))
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		s.log.Error("get tile %s: %v", coord.URLTemplate, err)
		return nil
	}
	return resp
}

func (s *Store) putTile(coord TileCoord, resp Response) {
	stmt, err := s.prepared(`
		INSERT INTO tiles (url_template, pixel_ratio, z, x, y, data, modified, expires, etag, error_reason, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url_template, pixel_ratio, z, x, y) DO UPDATE SET
			data = excluded.data, modified = excluded.modified, expires = excluded.expires,
			etag = excluded.etag, error_reason = excluded.error_reason, error_message = excluded.error_message
	`)
	if err != nil {
		s.log.Error("prepare put tile: %v", err)
		return
	}
	reason, message := errorColumns(resp)
	if _, err := stmt.Exec(coord.URLTemplate, coord.PixelRatio, coord.Z, coord.X, coord.Y, resp.Data, nullableTime(resp.Modified), nullableTime(resp.Expires), nullableString(resp.Etag), reason, message); err != nil {
		s.log.Error("put tile %s: %v", coord.URLTemplate, err)
	}
}

// regionRow is the raw, uninterpreted row shape stored for a region; the
// caller (internal/offline/region.go) decodes Definition and Metadata.
type regionRow struct {
	ID         int64
	Definition []byte
	Metadata   []byte
}

// CreateRegion inserts a new region row and returns its assigned id.
func (s *Store) CreateRegion(definition, metadata []byte) (int64, error) {
	stmt, err := s.prepared(`INSERT INTO regions (definition, metadata) VALUES (?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare create region: %w", err)
	}
	res, err := stmt.Exec(definition, metadata)
	if err != nil {
		return 0, fmt.Errorf("create region: %w", err)
	}
	return res.LastInsertId()
}

// ListRegions enumerates every region row in insertion order.
func (s *Store) ListRegions() ([]regionRow, error) {
	rows, err := s.db.Query(`SELECT id, definition, metadata FROM regions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var out []regionRow
	for rows.Next() {
		var rr regionRow
		if err := rows.Scan(&rr.ID, &rr.Definition, &rr.Metadata); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

// DeleteRegion removes a region row and its association rows. Resource and
// tile rows are left in place even if now unreferenced (retention policy;
// see DESIGN.md's Open Question decision).
func (s *Store) DeleteRegion(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete region: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM region_resources WHERE region_id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete region resources: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM region_tiles WHERE region_id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete region tiles: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM regions WHERE id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete region: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponse(row rowScanner) (*Response, error) {
	var data []byte
	var modified, expires sql.NullInt64
	var etag, errMessage sql.NullString
	var errReason int

	if err := row.Scan(&data, &modified, &expires, &etag, &errReason, &errMessage); err != nil {
		return nil, err
	}

	resp := &Response{Data: data}
	if modified.Valid {
		t := time.Unix(modified.Int64, 0).UTC()
		resp.Modified = &t
	}
	if expires.Valid {
		t := time.Unix(expires.Int64, 0).UTC()
		resp.Expires = &t
	}
	if etag.Valid {
		e := etag.String
		resp.Etag = &e
	}
	if ErrorReason(errReason) != ErrorNone {
		resp.Error = &ResponseError{Reason: ErrorReason(errReason), Message: errMessage.String}
	}
	return resp, nil
}

func errorColumns(resp Response) (reason int, message any) {
	if resp.Error == nil {
		return int(ErrorNone), nil
	}
	return int(resp.Error.Reason), resp.Error.Message
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
