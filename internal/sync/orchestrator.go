package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nucleus/ingest-core/internal/graph"
	"github.com/nucleus/ingest-core/internal/source"
)

// Resource is one syncable unit: a bucket for object stores, a mailbox for
// mail sources.
type Resource struct {
	Key        string // bucket name or mailbox id
	Type       string // graph.TypeFile | graph.TypeMessage
	ScopeKey   string // syncpoint scope, defaults to Key
	Scope      Scope  // TEAM or PERSONAL, file-like sources
	OwnerEmail string // creator/mailbox-owner identity hint
	GroupName  string // display name, defaults to Key
}

func (r Resource) scopeKey() string {
	if r.ScopeKey != "" {
		return r.ScopeKey
	}
	return r.Key
}

func (r Resource) groupName() string {
	if r.GroupName != "" {
		return r.GroupName
	}
	return r.Key
}

// ResourceStats summarizes one resource's sync.
type ResourceStats struct {
	New       int
	Updated   int
	Moved     int
	Unchanged int
	Degraded  int
	Skipped   int
	Linked    int
	Pages     int
}

// RunResult aggregates per-resource outcomes. A run is a partial success
// unless every resource failed.
type RunResult struct {
	Stats  map[string]*ResourceStats
	Errors map[string]error
}

// AllFailed reports whether no resource completed.
func (r *RunResult) AllFailed() bool {
	return len(r.Stats) == 0 && len(r.Errors) > 0
}

// Options tune engine behavior; zero values take defaults.
type Options struct {
	FileBatchSize    int
	MessageBatchSize int
	RatePerSecond    float64
	RateBurst        int
	AccessURLTTL     time.Duration
	IdentityCacheTTL time.Duration
	Logger           *slog.Logger
	Clock            func() time.Time
}

// Orchestrator drives one sync run per resource: INIT -> LISTING -> PER_ITEM
// -> FLUSH -> WATERMARK_COMMIT -> THREAD_LINK (mail) -> DONE. A single
// resource's sync is sequential; callers may drive resources concurrently.
type Orchestrator struct {
	connectorID string
	lister      *source.Lister
	store       graph.Store
	syncPoints  SyncPointStore
	detector    *Detector
	threads     *Reconstructor
	opts        Options
	log         *slog.Logger
	now         func() time.Time
}

// NewOrchestrator composes the engine for one connector instance.
func NewOrchestrator(connectorID string, adapter source.Adapter, store graph.Store, syncPoints SyncPointStore, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.FileBatchSize <= 0 {
		opts.FileBatchSize = DefaultFileBatchSize
	}
	if opts.MessageBatchSize <= 0 {
		opts.MessageBatchSize = DefaultMessageBatchSize
	}
	if opts.AccessURLTTL <= 0 {
		opts.AccessURLTTL = time.Hour
	}
	if opts.IdentityCacheTTL <= 0 {
		opts.IdentityCacheTTL = 15 * time.Minute
	}
	return &Orchestrator{
		connectorID: connectorID,
		lister:      source.NewLister(adapter, opts.RatePerSecond, opts.RateBurst),
		store:       store,
		syncPoints:  syncPoints,
		detector:    NewDetector(store),
		threads:     NewReconstructor(store, opts.Logger),
		opts:        opts,
		log:         opts.Logger,
		now:         opts.Clock,
	}
}

// Run syncs all resources sequentially. Per-resource failures are recorded
// and the run continues with the next resource.
func (o *Orchestrator) Run(ctx context.Context, resources []Resource) *RunResult {
	result := &RunResult{
		Stats:  make(map[string]*ResourceStats),
		Errors: make(map[string]error),
	}
	// The identity cache is invariant for the duration of one run.
	resolver := NewResolver(o.store, NewIdentityCache(o.opts.IdentityCacheTTL, o.now), o.log)

	for _, res := range resources {
		stats, err := o.SyncResource(ctx, res, resolver)
		if err != nil {
			o.log.Error("resource sync failed", "connector", o.connectorID, "resource", res.Key, "error", err)
			result.Errors[res.Key] = err
			continue
		}
		result.Stats[res.Key] = stats
		o.log.Info("resource synced",
			"connector", o.connectorID, "resource", res.Key,
			"new", stats.New, "updated", stats.Updated, "moved", stats.Moved,
			"unchanged", stats.Unchanged, "skipped", stats.Skipped, "linked", stats.Linked)
	}
	return result
}

// SyncResource runs one resource's sync end to end.
func (o *Orchestrator) SyncResource(ctx context.Context, res Resource, resolver *Resolver) (*ResourceStats, error) {
	stats := &ResourceStats{}

	// INIT: load the sync point and anchor the record group.
	key := SyncPointKey{ConnectorID: o.connectorID, ResourceType: res.Type, ScopeKey: res.scopeKey()}
	sp, _, err := o.syncPoints.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read sync point: %w", err)
	}
	group, err := o.store.EnsureGroup(ctx, graph.RecordGroup{
		ConnectorID:  o.connectorID,
		ExternalID:   res.Key,
		Name:         res.groupName(),
		ResourceType: res.Type,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure group: %w", err)
	}

	run := &resourceRun{
		res:      res,
		group:    group,
		synth:    NewSynthesizer(o.store, o.log),
		pipeline: NewPipeline(o.store, o.batchSize(res.Type), o.log),
		resolver: resolver,
		byToken:  make(map[string]string),
		stats:    stats,
	}

	// LISTING: delta when supported and cursor pagination otherwise. Each
	// page fetch is rate-limited and atomic.
	caps := o.lister.Adapter().Capabilities()
	var nextDelta string
	if caps.SupportsDelta {
		nextDelta, err = o.listDelta(ctx, run, sp.Extra[ExtraDeltaToken])
	} else {
		err = o.listPages(ctx, run, key, sp.PaginationCursor)
	}
	if err != nil {
		return nil, err
	}

	// FLUSH the buffered remainder.
	if err := run.pipeline.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	// WATERMARK_COMMIT: only reached when every batch committed, so the
	// watermark may also fold in items observed unchanged.
	watermark := run.pipeline.CommittedWatermark()
	if run.unchangedMax.After(watermark) {
		watermark = run.unchangedMax
	}
	patch := SyncPointPatch{PaginationCursor: StringPtr("")}
	if !watermark.IsZero() {
		patch.HighWatermark = &watermark
	}
	if nextDelta != "" {
		patch.Extra = map[string]string{ExtraDeltaToken: nextDelta}
	}
	if err := o.syncPoints.Update(ctx, key, patch); err != nil {
		return nil, fmt.Errorf("update sync point: %w", err)
	}

	// THREAD_LINK: mail only, after the mailbox's messages are committed.
	if res.Type == graph.TypeMessage {
		stats.Linked = o.threads.Link(ctx, run.byToken)
	}
	return stats, nil
}

type resourceRun struct {
	res      Resource
	group    *graph.RecordGroup
	synth    *Synthesizer
	pipeline *Pipeline
	resolver *Resolver
	byToken  map[string]string

	unchangedMax time.Time
	stats        *ResourceStats
}

func (o *Orchestrator) listPages(ctx context.Context, run *resourceRun, key SyncPointKey, cursor string) error {
	for {
		page, err := o.lister.NextPage(ctx, run.res.Key, cursor)
		if err != nil {
			return fmt.Errorf("list %s: %w", run.res.Key, err)
		}
		run.stats.Pages++
		for i := range page.Items {
			if err := o.processItem(ctx, run, &page.Items[i]); err != nil {
				return err
			}
		}
		if !page.HasMore {
			return nil
		}
		// A page boundary with nothing left buffered is a safe resume point:
		// everything listed so far is durably committed, so an interrupted
		// run restarts from here instead of re-listing from the beginning.
		if run.pipeline.Buffered() == 0 {
			patch := SyncPointPatch{PaginationCursor: StringPtr(page.NextCursor)}
			if err := o.syncPoints.Update(ctx, key, patch); err != nil {
				return fmt.Errorf("checkpoint cursor: %w", err)
			}
		}
		cursor = page.NextCursor
	}
}

func (o *Orchestrator) listDelta(ctx context.Context, run *resourceRun, token string) (string, error) {
	for {
		page, err := o.lister.NextDelta(ctx, run.res.Key, token)
		if err != nil {
			if source.IsDeltaExpired(err) && token != "" {
				o.log.Warn("delta token expired, falling back to full enumeration",
					"connector", o.connectorID, "resource", run.res.Key)
				token = ""
				continue
			}
			return "", fmt.Errorf("list delta %s: %w", run.res.Key, err)
		}
		run.stats.Pages++
		for i := range page.Items {
			if err := o.processItem(ctx, run, &page.Items[i]); err != nil {
				return "", err
			}
		}
		if !page.HasMore {
			return page.NextDeltaToken, nil
		}
		token = page.NextDeltaToken
	}
}

// processItem handles PER_ITEM. Classification and synthesis failures are
// logged and skipped; only commit failures abort the resource.
func (o *Orchestrator) processItem(ctx context.Context, run *resourceRun, item *source.Item) error {
	res := run.res

	if item.IsContainer {
		// Explicit container entries only pin their place in the hierarchy.
		if res.Type == graph.TypeFile && item.Path != "" {
			if _, _, err := run.synth.EnsurePath(ctx, o.connectorID, run.group, item.Path); err != nil {
				o.log.Warn("container synthesis failed, skipping item",
					"resource", res.Key, "path", item.Path, "error", err)
				run.stats.Skipped++
			}
		}
		return nil
	}

	parentExt, parentID := "", ""
	if res.Type == graph.TypeFile && item.Path != "" {
		var err error
		parentExt, parentID, err = run.synth.Ensure(ctx, o.connectorID, run.group, item.Path)
		if err != nil {
			o.log.Warn("hierarchy synthesis failed, skipping item",
				"resource", res.Key, "path", item.Path, "error", err)
			run.stats.Skipped++
			return nil
		}
	}

	change, err := o.detector.Classify(ctx, o.connectorID, item)
	if err != nil {
		o.log.Warn("change detection failed, skipping item",
			"resource", res.Key, "item", item.ExternalID, "error", err)
		run.stats.Skipped++
		return nil
	}

	// Every observed message joins the thread index, unchanged ones included,
	// so a new reply can link to a parent that needed no rewrite this run.
	if res.Type == graph.TypeMessage && item.OrderingToken != "" {
		run.byToken[item.OrderingToken] = change.RecordID
	}

	if change.Class == ClassUnchanged {
		run.stats.Unchanged++
		if item.ModifiedAt.After(run.unchangedMax) {
			run.unchangedMax = item.ModifiedAt
		}
		return nil
	}
	if change.Degraded {
		run.stats.Degraded++
		o.log.Warn("degraded detection: no usable fingerprint",
			"resource", res.Key, "item", item.ExternalID, "class", change.Class)
	}
	if change.Class == ClassMoved {
		// The prior parent edge goes before relinking under the new parent.
		if err := o.store.DeleteParentEdges(ctx, change.RecordID); err != nil {
			o.log.Warn("parent edge removal failed, skipping item",
				"resource", res.Key, "item", item.ExternalID, "error", err)
			run.stats.Skipped++
			return nil
		}
	}

	record := o.buildRecord(item, change, run.group, parentExt, parentID)
	if res.Type == graph.TypeFile {
		o.attachAccessURL(ctx, run, item, &record)
	}

	var perms []graph.Permission
	if res.Type == graph.TypeMessage {
		perms = run.resolver.ForMessage(ctx, res.OwnerEmail, item)
	} else {
		creator := item.CreatedBy
		if creator == "" && res.Scope == ScopePersonal {
			// Listings rarely carry creator identity; a personal-scope grant
			// needs it, so fall back to a per-item metadata fetch.
			meta, merr := o.lister.GetMetadata(ctx, res.Key, item.ExternalID)
			if merr != nil {
				o.log.Warn("metadata lookup failed",
					"resource", res.Key, "item", item.ExternalID, "error", merr)
			} else if meta != nil {
				creator = meta.CreatedBy
			}
		}
		if creator == "" {
			creator = res.OwnerEmail
		}
		perms = run.resolver.ForFile(ctx, res.Scope, creator)
	}

	if err := run.pipeline.Add(ctx, graph.Upsert{Record: record, Permissions: perms}); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	switch change.Class {
	case ClassNew:
		run.stats.New++
	case ClassUpdated:
		run.stats.Updated++
	case ClassMoved:
		run.stats.Moved++
	}
	return nil
}

func (o *Orchestrator) buildRecord(item *source.Item, change *Change, group *graph.RecordGroup, parentExt, parentID string) graph.Record {
	name := item.Name
	if name == "" {
		name = baseName(item.Path)
	}
	return graph.Record{
		ID:               change.RecordID,
		ConnectorID:      o.connectorID,
		ExternalID:       item.ExternalID,
		Name:             name,
		Path:             item.Path,
		ContentType:      item.ContentType,
		Size:             item.Size,
		Fingerprint:      item.Fingerprint,
		Version:          change.Version,
		AccessURL:        item.AccessURL,
		GroupID:          group.ID,
		ParentExternalID: parentExt,
		ParentID:         parentID,
		SourceCreatedAt:  item.CreatedAt,
		SourceModifiedAt: item.ModifiedAt,
	}
}

func (o *Orchestrator) attachAccessURL(ctx context.Context, run *resourceRun, item *source.Item, record *graph.Record) {
	if !o.lister.Adapter().Capabilities().SupportsAccessURLs {
		return
	}
	url, err := o.lister.Adapter().GenerateAccessURL(ctx, run.res.Key, item.ExternalID, o.opts.AccessURLTTL)
	if err != nil {
		o.log.Warn("access URL generation failed",
			"resource", run.res.Key, "item", item.ExternalID, "error", err)
		return
	}
	record.AccessURL = url
}

func (o *Orchestrator) batchSize(resourceType string) int {
	if resourceType == graph.TypeMessage {
		return o.opts.MessageBatchSize
	}
	return o.opts.FileBatchSize
}
