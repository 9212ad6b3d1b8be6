package graph

import (
	"container/list"
	"fmt"
	"sort"
	"sync"
	"time"
)

// VersionId identifies a single recorded state version. The Hash field is
// a human-legible "<id>-<unixSeconds>" label (both parts hex-encoded), not
// a cryptographic digest.
type VersionId struct {
	ID        uint64
	Timestamp int64
	Hash      string
}

// NewVersionId mints the next VersionId.
func NewVersionId(id uint64, now time.Time) VersionId {
	return VersionId{ID: id, Timestamp: now.Unix(), Hash: fmt.Sprintf("%x-%x", id, now.Unix())}
}

// VersionMetadata annotates a Version. Incremental/Differential
// are carried as distinct tag values with no distinct runtime behavior
// beyond labeling.
type VersionMetadata struct {
	Author       string
	Message      string
	Tags         []string
	Branch       string
	IsCheckpoint bool
}

const (
	TagIncremental  = "incremental"
	TagDifferential = "differential"
)

func defaultVersionMetadata() VersionMetadata {
	return VersionMetadata{Author: "system", Branch: "main"}
}

// SnapshotKind tags which payload representation a Version holds.
type SnapshotKind int

const (
	SnapshotFull SnapshotKind = iota
	SnapshotDelta
	SnapshotCompressed
)

// StateDelta is the changes/removals representation of a non-checkpoint
// version, computed against its parent.
type StateDelta struct {
	Changes     map[string]any
	Removals    []string
	BaseVersion VersionId
}

// ComputeDelta diffs target against base: keys present in target with a
// different (or absent-in-base) value are Changes; keys present in base
// but absent from target are Removals.
func ComputeDelta(base, target State) StateDelta {
	changes := map[string]any{}
	var removals []string
	for k, v := range target {
		if bv, ok := base[k]; !ok || !valuesEqual(bv, v) {
			changes[k] = v
		}
	}
	for k := range base {
		if _, ok := target[k]; !ok {
			removals = append(removals, k)
		}
	}
	sort.Strings(removals)
	return StateDelta{Changes: changes, Removals: removals}
}

// Apply reconstructs a state by replaying the delta onto base.
func (d StateDelta) Apply(base State) State {
	out := base.Clone()
	for k, v := range d.Changes {
		out[k] = v
	}
	for _, k := range d.Removals {
		delete(out, k)
	}
	return out
}

func valuesEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// StateSnapshot is the stored payload of a Version: exactly one of Full,
// Delta, or Compressed is populated, selected by Kind.
type StateSnapshot struct {
	Kind       SnapshotKind
	Full       State
	Delta      StateDelta
	Compressed []byte
}

// Version is one recorded point in the version history.
type Version struct {
	ID       VersionId
	ParentID *VersionId
	State    StateSnapshot
	Metadata VersionMetadata
}

// VersionStorage is the persistence backend a StateVersioningSystem stores
// versions through. InMemoryVersionStorage
// is the only bundled implementation.
type VersionStorage interface {
	Store(v Version) error
	Get(id VersionId) (Version, bool, error)
	List(startID, endID uint64) ([]VersionId, error)
	Delete(id VersionId) error
	Size() (int, error)
}

// InMemoryVersionStorage is a mutex-guarded map, the default backend.
type InMemoryVersionStorage struct {
	mu       sync.RWMutex
	versions map[uint64]Version
}

func NewInMemoryVersionStorage() *InMemoryVersionStorage {
	return &InMemoryVersionStorage{versions: map[uint64]Version{}}
}

func (s *InMemoryVersionStorage) Store(v Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[v.ID.ID] = v
	return nil
}

func (s *InMemoryVersionStorage) Get(id VersionId) (Version, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[id.ID]
	return v, ok, nil
}

func (s *InMemoryVersionStorage) List(startID, endID uint64) ([]VersionId, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []VersionId
	for id, v := range s.versions {
		if id >= startID && id <= endID {
			ids = append(ids, v.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].ID < ids[j].ID })
	return ids, nil
}

func (s *InMemoryVersionStorage) Delete(id VersionId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.versions, id.ID)
	return nil
}

func (s *InMemoryVersionStorage) Size() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.versions), nil
}

// VersioningConfig controls snapshot cadence, delta/full selection, and
// retention: max_versions=100, max_cache_size=10,
// enable_compression=true, delta_threshold=0.3, checkpoint_interval=10.
type VersioningConfig struct {
	MaxVersions        int
	MaxCacheSize       int
	EnableCompression  bool
	DeltaThreshold     float64
	CheckpointInterval int
}

func DefaultVersioningConfig() VersioningConfig {
	return VersioningConfig{
		MaxVersions:        100,
		MaxCacheSize:       10,
		EnableCompression:  true,
		DeltaThreshold:     0.3,
		CheckpointInterval: 10,
	}
}

// versionCache is a bounded FIFO of reconstructed states, keyed by
// VersionId.ID.
type versionCache struct {
	order   *list.List
	entries map[uint64]*list.Element
	maxSize int
}

type cacheEntry struct {
	id    VersionId
	state State
}

func newVersionCache(maxSize int) *versionCache {
	return &versionCache{order: list.New(), entries: map[uint64]*list.Element{}, maxSize: maxSize}
}

func (c *versionCache) get(id VersionId) (State, bool) {
	el, ok := c.entries[id.ID]
	if !ok {
		return nil, false
	}
	return el.Value.(cacheEntry).state, true
}

func (c *versionCache) put(id VersionId, state State) {
	if _, ok := c.entries[id.ID]; ok {
		return
	}
	if c.order.Len() >= c.maxSize {
		front := c.order.Front()
		if front != nil {
			delete(c.entries, front.Value.(cacheEntry).id.ID)
			c.order.Remove(front)
		}
	}
	el := c.order.PushBack(cacheEntry{id: id, state: state})
	c.entries[id.ID] = el
}

// VersioningMetrics summarizes a StateVersioningSystem's cumulative
// activity: version/snapshot/delta counts and cache hit/miss totals.
type VersioningMetrics struct {
	TotalVersions    int
	TotalSnapshots   int
	TotalDeltas      int
	CacheHits        int
	CacheMisses      int
	AverageDeltaSize int
	StorageBytes     int
}

// StateVersioningSystem is the general-purpose version history component.
// The parallel scheduler's per-level snapshot/rollback needs are satisfied
// by calling CreateVersion and Rollback directly on the same instance,
// rather than maintaining a second, redundant version list.
type StateVersioningSystem struct {
	mu             sync.Mutex
	storage        VersionStorage
	currentVersion VersionId
	nextID         uint64
	cache          *versionCache
	config         VersioningConfig
	metrics        VersioningMetrics
	clock          func() time.Time
}

func NewStateVersioningSystem(storage VersionStorage, cfg VersioningConfig) *StateVersioningSystem {
	return &StateVersioningSystem{
		storage:        storage,
		currentVersion: VersionId{},
		cache:          newVersionCache(cfg.MaxCacheSize),
		config:         cfg,
		clock:          time.Now,
	}
}

// CreateVersion snapshots state as a new Version, choosing Full (every
// checkpoint_interval'th version, or when no parent full snapshot is
// available, or when the delta would be "too large") versus Delta
// (otherwise),"Delta threshold".
func (vs *StateVersioningSystem) CreateVersion(state State, metadata VersionMetadata) (VersionId, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	parent := vs.currentVersion
	vs.nextID++
	newID := NewVersionId(vs.nextID, vs.clock())

	var snapshot StateSnapshot
	switch {
	case vs.config.CheckpointInterval > 0 && parent.ID%uint64(vs.config.CheckpointInterval) == 0:
		snapshot = StateSnapshot{Kind: SnapshotFull, Full: state.Clone()}
	default:
		parentVersion, found, _ := vs.storage.Get(parent)
		if found && parentVersion.State.Kind == SnapshotFull {
			delta := ComputeDelta(parentVersion.State.Full, state)
			delta.BaseVersion = parent
			deltaSize := len(delta.Changes) + len(delta.Removals)
			stateSize := len(state)
			if stateSize > 0 && float64(deltaSize)/float64(stateSize) < vs.config.DeltaThreshold {
				snapshot = StateSnapshot{Kind: SnapshotDelta, Delta: delta}
			} else {
				snapshot = StateSnapshot{Kind: SnapshotFull, Full: state.Clone()}
			}
		} else {
			snapshot = StateSnapshot{Kind: SnapshotFull, Full: state.Clone()}
		}
	}

	vs.metrics.TotalVersions++
	if snapshot.Kind == SnapshotDelta {
		vs.metrics.TotalDeltas++
	} else {
		vs.metrics.TotalSnapshots++
	}

	parentCopy := parent
	version := Version{ID: newID, ParentID: &parentCopy, State: snapshot, Metadata: metadata}
	if err := vs.storage.Store(version); err != nil {
		return VersionId{}, err
	}

	vs.cache.put(newID, state.Clone())
	vs.currentVersion = newID

	if err := vs.pruneOldVersionsLocked(); err != nil {
		return newID, err
	}
	return newID, nil
}

// GetVersion returns the reconstructed state at id, using the cache first
// and rebuilding through a chain of deltas back to the nearest Full
// snapshot otherwise.
func (vs *StateVersioningSystem) GetVersion(id VersionId) (State, bool, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.getVersionLocked(id)
}

func (vs *StateVersioningSystem) getVersionLocked(id VersionId) (State, bool, error) {
	if state, ok := vs.cache.get(id); ok {
		vs.metrics.CacheHits++
		return state, true, nil
	}
	vs.metrics.CacheMisses++

	version, found, err := vs.storage.Get(id)
	if err != nil || !found {
		return nil, false, err
	}

	var state State
	switch version.State.Kind {
	case SnapshotFull:
		state = version.State.Full.Clone()
	case SnapshotDelta:
		base, baseFound, err := vs.getVersionLocked(version.State.Delta.BaseVersion)
		if err != nil {
			return nil, false, err
		}
		if !baseFound {
			return nil, false, fmt.Errorf("%w: base version %d for delta %d", ErrSnapshotNotFound, version.State.Delta.BaseVersion.ID, id.ID)
		}
		state = version.State.Delta.Apply(base)
	case SnapshotCompressed:
		state = State{}
	}

	vs.cache.put(id, state.Clone())
	return state, true, nil
}

// Rollback moves the current-version pointer back to id and returns its
// reconstructed state.
func (vs *StateVersioningSystem) Rollback(id VersionId) (State, error) {
	vs.mu.Lock()
	state, found, err := vs.getVersionLocked(id)
	if err != nil {
		vs.mu.Unlock()
		return nil, err
	}
	if !found {
		vs.mu.Unlock()
		return nil, fmt.Errorf("%w: version %d", ErrSnapshotNotFound, id.ID)
	}
	vs.currentVersion = id
	vs.mu.Unlock()
	return state, nil
}

// Current returns the current-version pointer.
func (vs *StateVersioningSystem) Current() VersionId {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.currentVersion
}

// ListVersions lists version ids with id in [startID, endID].
func (vs *StateVersioningSystem) ListVersions(startID, endID uint64) ([]VersionId, error) {
	return vs.storage.List(startID, endID)
}

// pruneOldVersionsLocked deletes the oldest non-checkpoint versions once
// storage exceeds max_versions. Must be called with vs.mu held.
func (vs *StateVersioningSystem) pruneOldVersionsLocked() error {
	size, err := vs.storage.Size()
	if err != nil {
		return err
	}
	if size <= vs.config.MaxVersions {
		return nil
	}
	toRemove := size - vs.config.MaxVersions
	candidates, err := vs.storage.List(0, vs.nextID)
	if err != nil {
		return err
	}
	for _, id := range candidates {
		if toRemove == 0 {
			break
		}
		version, found, err := vs.storage.Get(id)
		if err != nil {
			return err
		}
		if found && !version.Metadata.IsCheckpoint {
			if err := vs.storage.Delete(id); err != nil {
				return err
			}
			if el, ok := vs.cache.entries[id.ID]; ok {
				vs.cache.order.Remove(el)
				delete(vs.cache.entries, id.ID)
			}
			toRemove--
		}
	}
	return nil
}

// Metrics snapshots the versioning system's counters.
func (vs *StateVersioningSystem) Metrics() VersioningMetrics {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.metrics
}

// BranchManager is a label-only pointer registry.
// SwitchBranch changes which branch name is "current" but does not itself
// move any version pointer — branches are advisory labels a caller can
// attach to CreateVersion's VersionMetadata.Branch field.
type BranchManager struct {
	mu      sync.Mutex
	heads   map[string]VersionId
	current string
}

func NewBranchManager() *BranchManager {
	return &BranchManager{heads: map[string]VersionId{"main": {}}, current: "main"}
}

func (b *BranchManager) CreateBranch(name string, from VersionId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.heads[name] = from
}

func (b *BranchManager) SwitchBranch(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.heads[name]; !ok {
		return fmt.Errorf("branch %q not found", name)
	}
	b.current = name
	return nil
}

func (b *BranchManager) CurrentBranch() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *BranchManager) Head(name string) (VersionId, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.heads[name]
	return v, ok
}
