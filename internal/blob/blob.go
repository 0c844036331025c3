// Package blob selects and opens the blob store datasets are exported to.
package blob

import (
	"context"
	"fmt"

	"spacenet/internal/blob/core"
	"spacenet/internal/config"
	"spacenet/internal/infra/blob/fs"
	"spacenet/internal/infra/blob/memory"
	"spacenet/internal/infra/blob/s3"
)

type (
	// Store is the blob storage abstraction.
	Store = core.Store
	// Info describes a stored blob.
	Info = core.Info
	// PutOptions tunes Put.
	PutOptions = core.PutOptions
	// Driver names a backend.
	Driver = core.Driver
)

// Open constructs the blob store named by cfg.Driver.
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	switch core.Driver(cfg.Driver) {
	case core.DriverFilesystem, "":
		store, err := fs.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case core.DriverMemory:
		return memory.New(), nil
	case core.DriverS3:
		store, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported blob driver %q", cfg.Driver)
	}
}
