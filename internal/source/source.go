package source

import (
	"context"
	"fmt"
	"time"

	"github.com/KaramelBytes/crimescope-cli/internal/boundary"
	"github.com/KaramelBytes/crimescope-cli/internal/config"
	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"github.com/KaramelBytes/crimescope-cli/internal/logger"
	"github.com/KaramelBytes/crimescope-cli/internal/metrics"
	"github.com/KaramelBytes/crimescope-cli/internal/store"
)

// Config selects where the two sources come from.
type Config struct {
	DatasetPath  string
	DatasetSheet string
	// DatabaseURL, when set, loads records from Postgres instead of the file.
	DatabaseURL       string
	BoundarySource    string
	BoundaryKey       string
	SimplifyTolerance float64
	FetchTimeout      time.Duration
}

// FromGlobal maps the application config.
func FromGlobal(c *config.Global) Config {
	return Config{
		DatasetPath:       c.DatasetPath,
		DatasetSheet:      c.DatasetSheet,
		DatabaseURL:       c.DatabaseURL,
		BoundarySource:    c.BoundarySource,
		BoundaryKey:       c.BoundaryKey,
		SimplifyTolerance: c.SimplifyTolerance,
		FetchTimeout:      c.HTTPTimeout(),
	}
}

// Sources memoizes the dataset and the boundary set.
type Sources struct {
	Dataset    *Memo[*dataset.Dataset]
	Boundaries *Memo[*boundary.Set]
}

// New wires loaders for cfg. Nothing is read until first use.
func New(cfg Config) *Sources {
	return &Sources{
		Dataset:    NewMemo(func(ctx context.Context) (*dataset.Dataset, error) { return loadDataset(ctx, cfg) }),
		Boundaries: NewMemo(func(ctx context.Context) (*boundary.Set, error) { return loadBoundaries(ctx, cfg) }),
	}
}

// Static returns sources that always yield the given values.
func Static(ds *dataset.Dataset, regions *boundary.Set) *Sources {
	return &Sources{
		Dataset:    NewMemo(func(context.Context) (*dataset.Dataset, error) { return ds, nil }),
		Boundaries: NewMemo(func(context.Context) (*boundary.Set, error) { return regions, nil }),
	}
}

// Both loads (or returns the cached) dataset and boundaries.
func (s *Sources) Both(ctx context.Context) (*dataset.Dataset, *boundary.Set, error) {
	ds, err := s.Dataset.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	regions, err := s.Boundaries.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ds, regions, nil
}

func loadDataset(ctx context.Context, cfg Config) (*dataset.Dataset, error) {
	start := time.Now()
	var (
		ds   *dataset.Dataset
		err  error
		from string
	)
	if cfg.DatabaseURL != "" {
		from = "postgres"
		db, cerr := store.Connect(cfg.DatabaseURL, false)
		if cerr != nil {
			err = cerr
		} else {
			ds, err = store.Load(ctx, db, "")
			if sqlDB, derr := db.DB(); derr == nil {
				_ = sqlDB.Close()
			}
		}
	} else {
		from = "file"
		ds, err = dataset.Load(cfg.DatasetPath, dataset.Options{SheetName: cfg.DatasetSheet})
	}
	if err != nil {
		metrics.SourceLoadsTotal.WithLabelValues("dataset", "error").Inc()
		return nil, fmt.Errorf("load dataset (%s): %w", from, err)
	}
	metrics.SourceLoadsTotal.WithLabelValues("dataset", "ok").Inc()
	logger.L().Info("dataset_loaded", "from", from, "name", ds.Name(), "records", ds.Len(),
		"years", len(ds.Years()), "categories", len(ds.Categories()), "duration_ms", time.Since(start).Milliseconds())
	return ds, nil
}

func loadBoundaries(ctx context.Context, cfg Config) (*boundary.Set, error) {
	start := time.Now()
	set, err := boundary.Load(ctx, cfg.BoundarySource, cfg.BoundaryKey, cfg.FetchTimeout)
	if err != nil {
		metrics.SourceLoadsTotal.WithLabelValues("boundary", "error").Inc()
		return nil, fmt.Errorf("load boundaries: %w", err)
	}
	before := set.VertexCount()
	set = set.Simplify(cfg.SimplifyTolerance)
	metrics.SourceLoadsTotal.WithLabelValues("boundary", "ok").Inc()
	logger.L().Info("boundaries_loaded", "source", cfg.BoundarySource, "regions", set.Len(), "skipped", set.Skipped,
		"vertices_before", before, "vertices_after", set.VertexCount(), "duration_ms", time.Since(start).Milliseconds())
	return set, nil
}
