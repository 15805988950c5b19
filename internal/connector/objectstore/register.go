package objectstore

import (
	"context"

	"github.com/nucleus/ingest-core/internal/source"
)

func init() {
	source.Register("object.s3", func(ctx context.Context, config map[string]any) (source.Adapter, error) {
		return New(ctx, config)
	})
}
