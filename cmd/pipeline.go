package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/aukilabs/escapefield/baker"
	"github.com/aukilabs/escapefield/classifier"
	"github.com/aukilabs/escapefield/featureflag"
	"github.com/aukilabs/escapefield/field"
	"github.com/aukilabs/escapefield/preview"
	"github.com/aukilabs/escapefield/store"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// pipeline bakes a scene and hands the result to the configured outputs.
type pipeline struct {
	conf    config
	flags   featureflag.FeatureFlag
	catalog *store.Catalog
	objects *store.ObjectStore
}

// run bakes the configured scene and returns the ID of the catalogued field.
func (p pipeline) run(ctx context.Context) (string, error) {
	job, err := classifier.LoadJob(p.conf.Scene)
	if err != nil {
		return "", err
	}
	if p.conf.CellSize > 0 {
		job.CellSize = p.conf.CellSize
	}

	opts := p.bakeOptions(job)

	res, err := baker.Bake(job.Bounds, job.CellSize, job.Scene, opts)
	if err != nil {
		return "", errors.New("baking scene failed").
			WithTag("scene", p.conf.Scene).
			Wrap(err)
	}

	logs.WithTag("bake_id", res.ID).
		WithTag("scene", p.conf.Scene).
		WithTag("cell_size", job.CellSize).
		WithTag("checksum", field.Checksum(res.Field)).
		Debug("scene baked")

	if p.conf.Output != "" {
		if err := writeArtifact(p.conf.Output, res.Field); err != nil {
			return "", err
		}
		logs.WithTag("bake_id", res.ID).
			WithTag("path", p.conf.Output).
			Info("field written")
	}

	rec, err := p.catalog.Save(ctx, job.Name, res)
	if err != nil {
		return "", err
	}

	if p.objects != nil {
		p.flags.IfNotSet(featureflag.FlagDisableObjectUpload, func() {
			key := store.ObjectKey(rec.ID)
			if err := p.objects.Put(ctx, key, res.Field); err != nil {
				logs.Warn(err)
				return
			}
			logs.WithTag("bake_id", res.ID).
				WithTag("key", key).
				Info("field uploaded")
		})
	}

	if p.conf.Preview.Path != "" {
		if err := p.renderPreview(job, opts); err != nil {
			return "", err
		}
	}

	return rec.ID, nil
}

func (p pipeline) bakeOptions(job *classifier.Job) baker.Options {
	opts := baker.Options{
		Name:     job.Name,
		MaxCells: p.conf.MaxCells,
	}

	p.flags.IfSet(featureflag.FlagParallelClassification, func() {
		opts.Workers = runtime.NumCPU()
	})
	p.flags.IfSet(featureflag.FlagFailOnUnreachableInterior, func() {
		opts.FailOnUnreachableInterior = true
	})
	return opts
}

func (p pipeline) renderPreview(job *classifier.Job, opts baker.Options) error {
	axis, err := preview.ParseAxis(p.conf.Preview.Axis)
	if err != nil {
		return err
	}

	g, _, err := baker.Preview(job.Bounds, job.CellSize, job.Scene, opts)
	if err != nil {
		return err
	}

	if err := preview.RenderSlice(g, axis, p.conf.Preview.Index, p.conf.Preview.Path, preview.Options{}); err != nil {
		return err
	}

	logs.WithTag("path", p.conf.Preview.Path).
		WithTag("axis", axis.String()).
		WithTag("index", p.conf.Preview.Index).
		Info("preview rendered")
	return nil
}

// importField downloads a field from the object store and saves it in the
// catalog under the same ID.
func importField(ctx context.Context, catalog *store.Catalog, objects *store.ObjectStore, id string) error {
	f, err := objects.Get(ctx, store.ObjectKey(id))
	if err != nil {
		return err
	}

	rec, err := catalog.Save(ctx, id, baker.Result{ID: id, Field: f})
	if err != nil {
		return err
	}

	logs.WithTag("id", rec.ID).
		WithTag("entries", rec.EntryCount).
		WithTag("checksum", rec.Checksum).
		Info("field imported")
	return nil
}

type encoder func(field.BakedField) ([]byte, error)

func artifactEncoder(path string) (encoder, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return field.EncodeJSON, nil

	case ".vfb":
		return func(f field.BakedField) ([]byte, error) {
			return field.EncodeBinary(f), nil
		}, nil

	default:
		return nil, errors.New("unsupported artifact extension").
			WithTag("path", path).
			WithTag("extension", ext)
	}
}

func writeArtifact(path string, f field.BakedField) error {
	encode, err := artifactEncoder(path)
	if err != nil {
		return err
	}

	b, err := encode(f)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.New("writing artifact failed").
			WithTag("path", path).
			Wrap(err)
	}
	return nil
}
