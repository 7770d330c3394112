// Package registry holds the authoritative in-memory device table.
//
// Every mutation goes through the Registry's lock, and each one that
// changes state writes a full snapshot to the backing repository before
// returning. Entries keep their insertion order; merges only append.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
	"camerabridge/internal/repository"
)

// ChangeKind names what happened to a device
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "device_added"
	ChangeUpdated ChangeKind = "device_updated"
	ChangeRemoved ChangeKind = "device_removed"
)

// Change is delivered to the listener after a mutation has been persisted
type Change struct {
	Kind   ChangeKind
	Device domain.Device
}

// Listener receives change notifications. It is called without the
// registry lock held and must not block for long.
type Listener func(Change)

// Option configures a Registry
type Option func(*Registry)

// WithClock overrides the time source used for lastSeen
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithLogger sets the registry logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logging.OrNop(l)
	}
}

// WithListener registers a change listener
func WithListener(fn Listener) Option {
	return func(r *Registry) {
		r.listener = fn
	}
}

// Registry is the single owner of device lifetime
type Registry struct {
	mu      sync.RWMutex
	devices []domain.Device
	byID    map[string]int
	byKey   map[domain.DeviceKey]string

	// persistMu orders snapshot writes; the snapshot is taken while it is
	// held so a later write never loses to an earlier one.
	persistMu sync.Mutex
	repo      repository.Repository

	now      func() time.Time
	logger   *zap.Logger
	listener Listener
}

// New creates an empty registry backed by repo
func New(repo repository.Repository, opts ...Option) *Registry {
	r := &Registry{
		byID:   make(map[string]int),
		byKey:  make(map[domain.DeviceKey]string),
		repo:   repo,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates a registry and loads the stored snapshot into it
func Open(ctx context.Context, repo repository.Repository, opts ...Option) (*Registry, error) {
	r := New(repo, opts...)
	if err := r.Load(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Load replaces the in-memory table with the stored snapshot. Entries that
// repeat an id or a dedup key are dropped, first one wins.
func (r *Registry) Load(ctx context.Context) error {
	devices, err := r.repo.LoadDevices(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = r.devices[:0]
	r.byID = make(map[string]int, len(devices))
	r.byKey = make(map[domain.DeviceKey]string, len(devices))

	for _, d := range devices {
		if d.ID == "" {
			d.ID = domain.NewDeviceID()
		}
		if _, dup := r.byID[d.ID]; dup {
			r.logger.Warn("dropping snapshot entry with duplicate id", zap.String("id", d.ID))
			continue
		}
		if other, dup := r.byKey[d.Key()]; dup {
			r.logger.Warn("dropping snapshot entry with duplicate address/channel",
				zap.String("id", d.ID),
				zap.String("kept", other),
				zap.Stringer("key", d.Key()))
			continue
		}
		d.ApplyDefaults()
		r.insertLocked(d)
	}

	r.logger.Info("registry loaded", zap.Int("devices", len(r.devices)))
	return nil
}

// List returns a copy of every device in insertion order
func (r *Registry) List() []domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Len returns the number of devices
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Get returns the device with the given id
func (r *Registry) Get(id string) (domain.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return domain.Device{}, false
	}
	return r.devices[i].Clone(), true
}

// FindByKey returns the device at address/channel
func (r *Registry) FindByKey(key domain.DeviceKey) (domain.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return domain.Device{}, false
	}
	return r.devices[r.byID[id]].Clone(), true
}

// Add inserts a device. A missing id is generated; an id or address/channel
// already present is a validation error. The stored device is returned.
func (r *Registry) Add(ctx context.Context, d domain.Device) (domain.Device, error) {
	if d.Address == "" {
		return domain.Device{}, domain.NewValidationError("address", "required")
	}
	if d.Channel < 0 {
		return domain.Device{}, domain.NewValidationError("channel", "must be non-negative")
	}

	r.mu.Lock()
	if d.ID == "" {
		d.ID = domain.NewDeviceID()
	}
	if _, exists := r.byID[d.ID]; exists {
		r.mu.Unlock()
		return domain.Device{}, domain.NewValidationError("id", fmt.Sprintf("device %s already exists", d.ID))
	}
	if other, exists := r.byKey[d.Key()]; exists {
		r.mu.Unlock()
		return domain.Device{}, domain.NewValidationError("address",
			fmt.Sprintf("%s already registered as %s", d.Key(), other))
	}
	d = d.Clone()
	d.ApplyDefaults()
	d.LastSeen = r.now()
	r.insertLocked(d)
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return d, err
	}
	r.notify(Change{Kind: ChangeAdded, Device: d.Clone()})
	return d, nil
}

// Remove deletes the device with the given id and reports whether it existed
func (r *Registry) Remove(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	i, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	removed := r.devices[i]
	r.devices = append(r.devices[:i], r.devices[i+1:]...)
	delete(r.byKey, removed.Key())
	delete(r.byID, id)
	r.reindexLocked()
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return true, err
	}
	r.notify(Change{Kind: ChangeRemoved, Device: removed})
	return true, nil
}

// Update applies a partial update and reports whether the device existed.
// Moving a device onto an occupied address/channel is a validation error.
func (r *Registry) Update(ctx context.Context, id string, patch domain.DevicePatch) (bool, error) {
	if err := patch.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	i, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}

	updated := r.devices[i].Clone()
	oldKey := updated.Key()
	patch.Apply(&updated)
	if newKey := updated.Key(); newKey != oldKey {
		if other, taken := r.byKey[newKey]; taken {
			r.mu.Unlock()
			return true, domain.NewValidationError("address",
				fmt.Sprintf("%s already registered as %s", newKey, other))
		}
		delete(r.byKey, oldKey)
		r.byKey[newKey] = id
	}
	updated.ApplyDefaults()
	updated.LastSeen = r.now()
	r.devices[i] = updated
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return true, err
	}
	r.notify(Change{Kind: ChangeUpdated, Device: updated.Clone()})
	return true, nil
}

// MergeCandidates adds every candidate whose address/channel is not yet
// registered, in the given order. Existing entries win and are left
// untouched. The snapshot is persisted only when something was added.
func (r *Registry) MergeCandidates(ctx context.Context, candidates []domain.Candidate) ([]domain.Device, error) {
	now := r.now()

	r.mu.Lock()
	var added []domain.Device
	for i := range candidates {
		c := &candidates[i]
		if c.Address == "" || c.Channel < 0 {
			r.logger.Debug("skipping unusable candidate",
				zap.String("source", string(c.Source)),
				zap.Stringer("key", c.Key()))
			continue
		}
		if _, exists := r.byKey[c.Key()]; exists {
			continue
		}
		d := c.ToDevice(now)
		r.insertLocked(d)
		added = append(added, d.Clone())
	}
	r.mu.Unlock()

	if len(added) == 0 {
		return nil, nil
	}
	if err := r.persist(ctx); err != nil {
		return added, err
	}
	for _, d := range added {
		r.notify(Change{Kind: ChangeAdded, Device: d})
	}
	return added, nil
}

// Flush writes the current table to the repository
func (r *Registry) Flush(ctx context.Context) error {
	return r.persist(ctx)
}

func (r *Registry) persist(ctx context.Context) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	snapshot := r.List()
	if err := r.repo.SaveDevices(ctx, snapshot); err != nil {
		r.logger.Error("failed to persist registry", zap.Error(err), zap.Int("devices", len(snapshot)))
		return fmt.Errorf("persist registry: %w", err)
	}
	return nil
}

func (r *Registry) notify(c Change) {
	if r.listener != nil {
		r.listener(c)
	}
}

func (r *Registry) insertLocked(d domain.Device) {
	r.byID[d.ID] = len(r.devices)
	r.byKey[d.Key()] = d.ID
	r.devices = append(r.devices, d)
}

func (r *Registry) reindexLocked() {
	for i, d := range r.devices {
		r.byID[d.ID] = i
	}
}

func (r *Registry) snapshotLocked() []domain.Device {
	out := make([]domain.Device, len(r.devices))
	for i, d := range r.devices {
		out[i] = d.Clone()
	}
	return out
}
