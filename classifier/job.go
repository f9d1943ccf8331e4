package classifier

import (
	"os"

	"github.com/aukilabs/escapefield/geom"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

const (
	ErrTypeInvalidScene = "invalid_scene"
)

// Job is a bake job described in YAML: where to bake, at which resolution,
// and the colliders to bake against.
type Job struct {
	Name     string
	Bounds   geom.Bounds
	CellSize float64
	Scene    *Scene
}

type jobFile struct {
	Name   string `yaml:"name"`
	Bounds struct {
		Min    *vec3 `yaml:"min"`
		Center *vec3 `yaml:"center"`
		Size   vec3  `yaml:"size"`
	} `yaml:"bounds"`
	CellSize float64 `yaml:"cell_size"`
	Spheres  []struct {
		Center vec3    `yaml:"center"`
		Radius float64 `yaml:"radius"`
	} `yaml:"spheres,omitempty"`
	Boxes []struct {
		Center      vec3 `yaml:"center"`
		HalfExtents vec3 `yaml:"half_extents"`
	} `yaml:"boxes,omitempty"`
}

// vec3 is written as a three item sequence: [x, y, z].
type vec3 [3]float64

func (v vec3) toR3() r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

// LoadJob reads and parses a YAML bake job.
func LoadJob(path string) (*Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("reading bake job failed").
			WithTag("path", path).
			Wrap(err)
	}

	job, err := ParseJob(b)
	if err != nil {
		return nil, errors.New("parsing bake job failed").
			WithType(ErrTypeInvalidScene).
			WithTag("path", path).
			Wrap(err)
	}
	return job, nil
}

// ParseJob parses a YAML bake job. The cell size is not validated here since
// it may be overridden by the caller.
func ParseJob(b []byte) (*Job, error) {
	var f jobFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.New("decoding yaml failed").
			WithType(ErrTypeInvalidScene).
			Wrap(err)
	}

	bounds, err := f.bounds()
	if err != nil {
		return nil, err
	}

	job := &Job{
		Name:     f.Name,
		Bounds:   bounds,
		CellSize: f.CellSize,
		Scene:    &Scene{},
	}

	for i, s := range f.Spheres {
		if !(s.Radius > 0) || !geom.IsFiniteScalar(s.Radius) {
			return nil, errors.New("sphere radius must be positive").
				WithType(ErrTypeInvalidScene).
				WithTag("sphere", i).
				WithTag("radius", s.Radius)
		}

		job.Scene.Spheres = append(job.Scene.Spheres, geom.Sphere{
			Center: s.Center.toR3(),
			Radius: s.Radius,
		})
	}

	for i, box := range f.Boxes {
		extents := box.HalfExtents.toR3()
		if extents.X < 0 || extents.Y < 0 || extents.Z < 0 || !geom.IsFinite(extents) {
			return nil, errors.New("box half extents must not be negative").
				WithType(ErrTypeInvalidScene).
				WithTag("box", i).
				WithTag("half_extents", box.HalfExtents)
		}

		job.Scene.Boxes = append(job.Scene.Boxes, geom.Box{
			Center:  box.Center.toR3(),
			Extents: extents,
		})
	}

	return job, nil
}

// bounds accepts either a min corner or a center, never both. A region
// given by neither starts at the origin.
func (f jobFile) bounds() (geom.Bounds, error) {
	size := f.Bounds.Size.toR3()

	switch {
	case f.Bounds.Min != nil && f.Bounds.Center != nil:
		return geom.Bounds{}, errors.New("bounds min and center are exclusive").
			WithType(ErrTypeInvalidScene).
			WithTag("min", *f.Bounds.Min).
			WithTag("center", *f.Bounds.Center)

	case f.Bounds.Center != nil:
		return geom.NewBoundsFromCenter(f.Bounds.Center.toR3(), size), nil

	case f.Bounds.Min != nil:
		return geom.Bounds{Min: f.Bounds.Min.toR3(), Size: size}, nil

	default:
		return geom.Bounds{Size: size}, nil
	}
}
