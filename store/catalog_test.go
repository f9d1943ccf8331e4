package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aukilabs/escapefield/baker"
	"github.com/aukilabs/escapefield/classifier"
	"github.com/aukilabs/escapefield/field"
	"github.com/aukilabs/escapefield/geom"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func newTestCatalog(t *testing.T) *Catalog {
	c, err := OpenCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func bakeTestField(t *testing.T) baker.Result {
	scene := &classifier.Scene{
		Spheres: []geom.Sphere{{Center: r3.Vec{X: 1, Y: 1, Z: 1}, Radius: 0.8}},
	}

	res, err := baker.Bake(geom.Bounds{Min: r3.Vec{X: -1}, Size: geom.Splat(3)}, 0.25, scene, baker.Options{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Field.Entries)
	return res
}

func TestPayloadCodecs(t *testing.T) {
	require.NotNil(t, payloadEncoder)
	require.NotNil(t, payloadDecoder)

	raw := []byte("escape vector field payload")
	b, err := payloadDecoder.DecodeAll(payloadEncoder.EncodeAll(raw, nil), nil)
	require.NoError(t, err)
	require.Equal(t, raw, b)
}

func TestCatalogSaveLoad(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	res := bakeTestField(t)

	rec, err := c.Save(ctx, "sphere", res)
	require.NoError(t, err)
	require.Equal(t, res.ID, rec.ID)
	require.Equal(t, "sphere", rec.Name)
	require.Equal(t, res.Field.BoundsMin, rec.BoundsMin)
	require.Equal(t, res.Field.CellSize, rec.CellSize)
	require.Equal(t, len(res.Field.Entries), rec.EntryCount)
	require.Equal(t, field.Checksum(res.Field), rec.Checksum)
	require.False(t, rec.CreatedAt.IsZero())

	got, err := c.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	f, err := c.Load(ctx, rec.ID)
	require.NoError(t, err)
	// Decoding re-normalizes directions, which may move the last bits.
	require.Empty(t, cmp.Diff(res.Field, f, cmpopts.EquateApprox(0, 1e-12)))
}

func TestCatalogSaveWithoutID(t *testing.T) {
	c := newTestCatalog(t)
	res := bakeTestField(t)
	res.ID = ""

	rec, err := c.Save(context.Background(), "anonymous", res)
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
}

func TestCatalogListDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	records, err := c.List(ctx)
	require.NoError(t, err)
	require.Empty(t, records)

	a, err := c.Save(ctx, "a", bakeTestField(t))
	require.NoError(t, err)
	b, err := c.Save(ctx, "b", bakeTestField(t))
	require.NoError(t, err)

	records, err = c.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.ElementsMatch(t, []string{a.ID, b.ID}, []string{records[0].ID, records[1].ID})

	require.NoError(t, c.Delete(ctx, a.ID))

	records, err = c.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []Record{b}, records)

	err = c.Delete(ctx, a.ID)
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeFieldNotFound))
}

func TestCatalogNotFound(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	_, err := c.Get(ctx, "unknown")
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeFieldNotFound))

	_, err = c.Load(ctx, "unknown")
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeFieldNotFound))
}

func TestCatalogDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	rec, err := c.Save(ctx, "corrupted", bakeTestField(t))
	require.NoError(t, err)

	_, err = c.db.ExecContext(ctx, `UPDATE fields SET checksum = ? WHERE id = ?`, field.ChecksumBinary([]byte("other")), rec.ID)
	require.NoError(t, err)

	_, err = c.Load(ctx, rec.ID)
	require.Error(t, err)
	require.True(t, errors.IsType(err, field.ErrTypeChecksumMismatch))
}

func TestCatalogReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	c, err := OpenCatalog(path)
	require.NoError(t, err)
	rec, err := c.Save(ctx, "persisted", bakeTestField(t))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = OpenCatalog(path)
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}
