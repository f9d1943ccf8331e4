package field

import (
	_ "embed"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/xeipuuv/gojsonschema"
	"gonum.org/v1/gonum/spatial/r3"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

type vec3JSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func newVec3JSON(v r3.Vec) vec3JSON {
	return vec3JSON{X: v.X, Y: v.Y, Z: v.Z}
}

func (v vec3JSON) toR3() r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

type entryJSON struct {
	Position  vec3JSON `json:"position"`
	Direction vec3JSON `json:"direction"`
}

type bakedFieldJSON struct {
	BoundsMin vec3JSON    `json:"boundsMin"`
	CellSize  float64     `json:"cellSize"`
	Entries   []entryJSON `json:"entries"`
}

// EncodeJSON encodes the field in the layout shared with engine-side tooling.
func EncodeJSON(f BakedField) ([]byte, error) {
	doc := bakedFieldJSON{
		BoundsMin: newVec3JSON(f.BoundsMin),
		CellSize:  f.CellSize,
		Entries:   make([]entryJSON, len(f.Entries)),
	}

	for i, e := range f.Entries {
		doc.Entries[i] = entryJSON{
			Position:  newVec3JSON(e.Position),
			Direction: newVec3JSON(e.Direction),
		}
	}

	return json.Marshal(doc)
}

// DecodeJSON validates a JSON document against the artifact schema and
// decodes it. Directions are re-normalized since the file may have been
// edited by hand.
func DecodeJSON(b []byte) (BakedField, error) {
	if err := validateJSON(b); err != nil {
		return BakedField{}, err
	}

	var doc bakedFieldJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return BakedField{}, errors.New("decoding json artifact failed").
			WithType(ErrTypeInvalidArtifact).
			Wrap(err)
	}

	f := BakedField{
		BoundsMin: doc.BoundsMin.toR3(),
		CellSize:  doc.CellSize,
		Entries:   make([]Entry, len(doc.Entries)),
	}
	for i, e := range doc.Entries {
		f.Entries[i] = Entry{
			Position:  e.Position.toR3(),
			Direction: e.Direction.toR3(),
		}
	}

	if err := f.Validate(); err != nil {
		return BakedField{}, err
	}
	return f.sanitize(), nil
}

func validateJSON(b []byte) error {
	res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(b))
	if err != nil {
		return errors.New("validating json artifact failed").
			WithType(ErrTypeInvalidArtifact).
			Wrap(err)
	}

	if !res.Valid() {
		descs := make([]string, 0, len(res.Errors()))
		for _, desc := range res.Errors() {
			descs = append(descs, desc.String())
		}

		return errors.New("json artifact does not match schema").
			WithType(ErrTypeInvalidArtifact).
			WithTag("violations", strings.Join(descs, "; "))
	}

	return nil
}
