package store

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/aukilabs/escapefield/baker"
	"github.com/aukilabs/escapefield/field"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/spatial/r3"
	_ "modernc.org/sqlite"
)

const (
	ErrTypeFieldNotFound = "field_not_found"
	ErrTypeCatalog       = "catalog_error"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	payloadEncoder *zstd.Encoder
	payloadDecoder *zstd.Decoder
)

func init() {
	var err error
	if payloadEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression)); err != nil {
		panic(err)
	}
	if payloadDecoder, err = zstd.NewReader(nil); err != nil {
		panic(err)
	}
}

// Record describes a baked field stored in the catalog.
type Record struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	BoundsMin  r3.Vec    `json:"boundsMin"`
	CellSize   float64   `json:"cellSize"`
	EntryCount int       `json:"entryCount"`
	Unresolved int       `json:"unresolved"`
	Checksum   string    `json:"checksum"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Catalog persists baked fields in a SQLite database. Payloads are stored as
// zstd compressed binary artifacts.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens the SQLite database at the given path and brings its
// schema up to date.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New("opening catalog database failed").
			WithType(ErrTypeCatalog).
			WithTag("path", path).
			Wrap(err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, errors.New("migrating catalog database failed").
			WithType(ErrTypeCatalog).
			WithTag("path", path).
			Wrap(err)
	}

	return &Catalog{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return err
	}

	// The migrate instance is not closed since it would close db.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Save stores the field of a bake result under the given name. The record ID
// is the bake ID when there is one.
func (c *Catalog) Save(ctx context.Context, name string, res baker.Result) (Record, error) {
	id := res.ID
	if id == "" {
		id = uuid.NewString()
	}

	raw := field.EncodeBinary(res.Field)
	rec := Record{
		ID:         id,
		Name:       name,
		BoundsMin:  res.Field.BoundsMin,
		CellSize:   res.Field.CellSize,
		EntryCount: len(res.Field.Entries),
		Unresolved: res.Stats.Unresolved,
		Checksum:   field.ChecksumBinary(raw),
		CreatedAt:  time.Unix(0, time.Now().UnixNano()).UTC(),
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO fields (
			id, name, bounds_min_x, bounds_min_y, bounds_min_z, cell_size,
			entry_count, unresolved, checksum, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Name,
		rec.BoundsMin.X,
		rec.BoundsMin.Y,
		rec.BoundsMin.Z,
		rec.CellSize,
		rec.EntryCount,
		rec.Unresolved,
		rec.Checksum,
		payloadEncoder.EncodeAll(raw, nil),
		rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return Record{}, errors.New("saving field failed").
			WithType(ErrTypeCatalog).
			WithTag("id", id).
			WithTag("name", name).
			Wrap(err)
	}

	logs.WithTag("id", rec.ID).
		WithTag("name", rec.Name).
		WithTag("entries", rec.EntryCount).
		WithTag("checksum", rec.Checksum).
		Debug("field saved in catalog")
	return rec, nil
}

const recordColumns = `id, name, bounds_min_x, bounds_min_y, bounds_min_z, cell_size,
	entry_count, unresolved, checksum, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var rec Record
	var createdAt int64

	err := s.Scan(
		&rec.ID,
		&rec.Name,
		&rec.BoundsMin.X,
		&rec.BoundsMin.Y,
		&rec.BoundsMin.Z,
		&rec.CellSize,
		&rec.EntryCount,
		&rec.Unresolved,
		&rec.Checksum,
		&createdAt,
	)
	if err != nil {
		return Record{}, err
	}

	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return rec, nil
}

// Get returns the record with the given ID.
func (c *Catalog) Get(ctx context.Context, id string) (Record, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM fields WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, notFound(id)
	}
	if err != nil {
		return Record{}, errors.New("getting field record failed").
			WithType(ErrTypeCatalog).
			WithTag("id", id).
			Wrap(err)
	}
	return rec, nil
}

// List returns every record, most recent first.
func (c *Catalog) List(ctx context.Context) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM fields ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, errors.New("listing field records failed").
			WithType(ErrTypeCatalog).
			Wrap(err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.New("reading field record failed").
				WithType(ErrTypeCatalog).
				Wrap(err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.New("listing field records failed").
			WithType(ErrTypeCatalog).
			Wrap(err)
	}
	return records, nil
}

// Load decompresses the payload of the given field, verifies its checksum and
// decodes it.
func (c *Catalog) Load(ctx context.Context, id string) (field.BakedField, error) {
	var checksum string
	var payload []byte

	err := c.db.
		QueryRowContext(ctx, `SELECT checksum, payload FROM fields WHERE id = ?`, id).
		Scan(&checksum, &payload)
	if err == sql.ErrNoRows {
		return field.BakedField{}, notFound(id)
	}
	if err != nil {
		return field.BakedField{}, errors.New("loading field failed").
			WithType(ErrTypeCatalog).
			WithTag("id", id).
			Wrap(err)
	}

	raw, err := payloadDecoder.DecodeAll(payload, nil)
	if err != nil {
		return field.BakedField{}, errors.New("decompressing field payload failed").
			WithType(field.ErrTypeInvalidArtifact).
			WithTag("id", id).
			Wrap(err)
	}

	if err := field.VerifyChecksum(raw, checksum); err != nil {
		return field.BakedField{}, errors.New("field payload is corrupted").
			WithType(field.ErrTypeChecksumMismatch).
			WithTag("id", id).
			Wrap(err)
	}

	f, err := field.DecodeBinary(raw)
	if err != nil {
		return field.BakedField{}, errors.New("decoding field payload failed").
			WithType(field.ErrTypeInvalidArtifact).
			WithTag("id", id).
			Wrap(err)
	}
	return f, nil
}

// Delete removes the given field from the catalog.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM fields WHERE id = ?`, id)
	if err != nil {
		return errors.New("deleting field failed").
			WithType(ErrTypeCatalog).
			WithTag("id", id).
			Wrap(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.New("deleting field failed").
			WithType(ErrTypeCatalog).
			WithTag("id", id).
			Wrap(err)
	}
	if n == 0 {
		return notFound(id)
	}

	logs.WithTag("id", id).Debug("field deleted from catalog")
	return nil
}

func notFound(id string) error {
	return errors.New("field not found").
		WithType(ErrTypeFieldNotFound).
		WithTag("id", id)
}
