package outlook

import (
	"context"

	"github.com/nucleus/ingest-core/internal/source"
)

func init() {
	source.Register("mail.outlook", func(ctx context.Context, config map[string]any) (source.Adapter, error) {
		return New(config)
	})
}
