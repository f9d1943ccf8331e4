package field

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func testField() BakedField {
	return BakedField{
		BoundsMin: r3.Vec{X: -2, Y: 0, Z: 4},
		CellSize:  0.5,
		Entries: []Entry{
			{Position: r3.Vec{X: 0.25, Y: 0.25, Z: 0.25}, Direction: r3.Vec{Y: -1}},
			{Position: r3.Vec{X: 0.75, Y: 0.25, Z: 0.25}, Direction: r3.Vec{X: 1}},
			{Position: r3.Vec{X: 0.25, Y: 1.25, Z: 0.75}, Direction: r3.Vec{Z: -1}},
		},
	}
}

func TestLookupRoundTrip(t *testing.T) {
	f := testField()
	l := NewLookup(f)
	require.Equal(t, 3, l.Len())

	for _, e := range f.Entries {
		dir, ok := l.TryGetDirection(r3.Add(e.Position, f.BoundsMin))
		require.True(t, ok)
		require.Equal(t, e.Direction, dir)
	}
}

func TestLookupEnclosingCell(t *testing.T) {
	f := testField()
	l := NewLookup(f)

	t.Run("anywhere inside the cell", func(t *testing.T) {
		dir, ok := l.TryGetDirection(r3.Vec{X: -1.99, Y: 0.49, Z: 4.01})
		require.True(t, ok)
		require.Equal(t, r3.Vec{Y: -1}, dir)
	})

	t.Run("neighbouring empty cell", func(t *testing.T) {
		_, ok := l.TryGetDirection(r3.Vec{X: -1.25, Y: 0.75, Z: 4.25})
		require.False(t, ok)
	})

	t.Run("below bounds", func(t *testing.T) {
		_, ok := l.TryGetDirection(r3.Vec{X: -2.25, Y: 0.25, Z: 4.25})
		require.False(t, ok)
	})
}

func TestLookupLastWriteWins(t *testing.T) {
	f := testField()
	f.Entries = append(f.Entries, Entry{
		Position:  r3.Vec{X: 0.4, Y: 0.1, Z: 0.2},
		Direction: r3.Vec{X: -1},
	})

	l := NewLookup(f)
	require.Equal(t, 3, l.Len())

	dir, ok := l.TryGetDirection(r3.Add(f.Entries[0].Position, f.BoundsMin))
	require.True(t, ok)
	require.Equal(t, r3.Vec{X: -1}, dir)
}

func TestLookupNotBuilt(t *testing.T) {
	var nilLookup *Lookup
	_, ok := nilLookup.TryGetDirection(r3.Vec{})
	require.False(t, ok)
	require.Equal(t, 0, nilLookup.Len())

	var zero Lookup
	_, ok = zero.TryGetDirection(r3.Vec{})
	require.False(t, ok)

	empty := NewLookup(BakedField{CellSize: 1})
	_, ok = empty.TryGetDirection(r3.Vec{})
	require.False(t, ok)

	invalid := NewLookup(BakedField{Entries: testField().Entries})
	_, ok = invalid.TryGetDirection(r3.Vec{X: 0.25, Y: 0.25, Z: 0.25})
	require.False(t, ok)
}

func TestAnchor(t *testing.T) {
	f := testField()
	a := Anchor{
		Lookup: NewLookup(f),
		Origin: r3.Vec{X: 100, Y: 0, Z: -100},
	}

	dir, ok := a.TryGetDirection(r3.Vec{X: 98.25, Y: 0.25, Z: -95.75})
	require.True(t, ok)
	require.Equal(t, r3.Vec{Y: -1}, dir)

	_, ok = a.TryGetDirection(r3.Vec{X: -1.75, Y: 0.25, Z: 4.25})
	require.False(t, ok)
}
