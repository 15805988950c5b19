package sync

import (
	"context"

	"github.com/google/uuid"

	"github.com/nucleus/ingest-core/internal/graph"
	"github.com/nucleus/ingest-core/internal/source"
)

// Classification is the outcome of change detection for one item.
type Classification string

const (
	ClassUnchanged Classification = "UNCHANGED"
	ClassNew       Classification = "NEW"
	ClassUpdated   Classification = "UPDATED"
	ClassMoved     Classification = "MOVED"
)

// Change carries the classification plus the internal id and version the
// commit must use.
type Change struct {
	Class    Classification
	RecordID string
	Version  int64

	// Degraded marks detection without any fingerprint: prior absence cannot
	// be asserted, so the item is conservatively treated as NEW.
	Degraded bool

	// Prior is the matched existing record, nil for NEW.
	Prior *graph.Record
}

// Detector classifies an external item against the target store with a
// two-phase lookup: identity first, fingerprint fallback. Ambiguity from a
// missing fingerprint on either side biases toward "treat as changed";
// items are never silently skipped.
type Detector struct {
	store graph.Store
}

// NewDetector creates a change detector over the given store.
func NewDetector(store graph.Store) *Detector {
	return &Detector{store: store}
}

// Classify runs the detection algorithm for one item.
func (d *Detector) Classify(ctx context.Context, connectorID string, item *source.Item) (*Change, error) {
	// PRIMARY: identity lookup.
	prior, err := d.store.GetRecordByExternalID(ctx, connectorID, item.ExternalID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		if item.Fingerprint != "" && prior.Fingerprint != "" && item.Fingerprint == prior.Fingerprint {
			return &Change{
				Class:    ClassUnchanged,
				RecordID: prior.ID,
				Version:  prior.Version,
				Prior:    prior,
			}, nil
		}
		return &Change{
			Class:    ClassUpdated,
			RecordID: prior.ID,
			Version:  prior.Version + 1,
			Degraded: item.Fingerprint == "" || prior.Fingerprint == "",
			Prior:    prior,
		}, nil
	}

	// FALLBACK: fingerprint lookup, only when a fingerprint exists.
	if item.Fingerprint != "" {
		moved, err := d.store.GetRecordByFingerprint(ctx, connectorID, item.Fingerprint)
		if err != nil {
			return nil, err
		}
		if moved != nil {
			return &Change{
				Class:    ClassMoved,
				RecordID: moved.ID,
				Version:  moved.Version + 1,
				Prior:    moved,
			}, nil
		}
		return &Change{
			Class:    ClassNew,
			RecordID: uuid.NewString(),
			Version:  0,
		}, nil
	}

	// No fingerprint at all: NEW with degraded detection.
	return &Change{
		Class:    ClassNew,
		RecordID: uuid.NewString(),
		Version:  0,
		Degraded: true,
	}, nil
}
