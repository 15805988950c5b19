package source

import (
	"context"
	"strings"
	"testing"
)

type nopAdapter struct{ countingAdapter }

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	reg.Register("fake.b", func(ctx context.Context, config map[string]any) (Adapter, error) {
		return &nopAdapter{}, nil
	})

	t.Run("create known template", func(t *testing.T) {
		adapter, err := reg.Create(ctx, "fake.b", nil)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		defer adapter.Close()
	})

	t.Run("unknown template names the registered ones", func(t *testing.T) {
		_, err := reg.Create(ctx, "fake.missing", nil)
		if err == nil {
			t.Fatal("expected error for unknown template")
		}
		if !strings.Contains(err.Error(), "fake.b") {
			t.Fatalf("error should list registered templates, got %v", err)
		}
	})

	t.Run("list is sorted", func(t *testing.T) {
		reg.Register("fake.a", func(ctx context.Context, config map[string]any) (Adapter, error) {
			return &nopAdapter{}, nil
		})
		ids := reg.List()
		if len(ids) != 2 || ids[0] != "fake.a" || ids[1] != "fake.b" {
			t.Fatalf("expected sorted template ids, got %v", ids)
		}
	})
}
