package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/pulseone-io/collector/pkg/model"
)

// SnapshotVersion is the current version of the snapshot file format.
const SnapshotVersion = 1

// snapshotEncMode/snapshotDecMode use canonical, deterministic CBOR
// encoding and RFC3339Nano timestamps, so a snapshot file is byte-stable
// across identical inputs.
var snapshotEncMode cbor.EncMode
var snapshotDecMode cbor.DecMode

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort: cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time: cbor.TimeRFC3339Nano,
	}
	snapshotEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	snapshotDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR decoder mode: %v", err))
	}
}

// Snapshot is everything WorkerManager/AlarmEngine/VirtualPointEngine need
// to start from when ConfigStore is unreachable: the last successfully
// read device fleet, keyed collections of their points, and the rule/
// virtual-point sets.
type Snapshot struct {
	Version int `cbor:"1,keyasint"`

	SavedAt time.Time `cbor:"2,keyasint"`

	Devices []model.Device `cbor:"3,keyasint"`

	// PointsByDevice maps a device id's decimal string (CBOR map keys
	// must be a fixed kind; model.DeviceID has no text marshaler) to its
	// point list.
	PointsByDevice map[string][]model.DataPoint `cbor:"4,keyasint"`

	AlarmRules []model.AlarmRule `cbor:"5,keyasint"`
	VirtualPoints []model.VirtualPoint `cbor:"6,keyasint"`
}

// SnapshotCache persists a Snapshot to a single CBOR file on disk.
type SnapshotCache struct {
	mu sync.Mutex
	path string
}

// NewSnapshotCache creates a cache backed by path.
func NewSnapshotCache(path string) *SnapshotCache {
	return &SnapshotCache{path: path}
}

// Save writes snap to disk, overwriting any prior snapshot.
func (c *SnapshotCache) Save(snap *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	snap.Version = SnapshotVersion
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}

	data, err := snapshotEncMode.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

// Load reads the snapshot from disk. Returns nil, nil if no snapshot has
// ever been saved.
func (c *SnapshotCache) Load() (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{}
	if err := snapshotDecMode.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Clear removes the snapshot file.
func (c *SnapshotCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
