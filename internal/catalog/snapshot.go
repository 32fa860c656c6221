package catalog

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// SnapshotCatalog is the remote-backed catalog: a flat folder whose content is kept in
// line with the latest manifest. The reserved blank image never takes part in rotations.
type SnapshotCatalog struct {
	dir       string
	blankName string
	snapshot  mapset.Set[string]
	history   mapset.Set[string]
	rnd       *rand.Rand
}

func NewSnapshotCatalog(dir string, blankName string, rnd *rand.Rand) *SnapshotCatalog {
	return &SnapshotCatalog{
		dir:       dir,
		blankName: blankName,
		snapshot:  mapset.NewSet[string](),
		history:   mapset.NewSet[string](),
		rnd:       rnd,
	}
}

// LocalBitmaps lists the bitmap file names present in dir, blank image excluded.
// A missing folder is an empty listing.
func LocalBitmaps(dir string, blankName string) (mapset.Set[string], error) {
	names := mapset.NewSet[string]()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return names, nil
		}
		return nil, fmt.Errorf("unable to read directory, %s, %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == blankName || !IsSupported(name) {
			continue
		}
		names.Add(name)
	}
	return names, nil
}

// Load replaces the snapshot with the current folder content.
func (c *SnapshotCatalog) Load() error {
	names, err := LocalBitmaps(c.dir, c.blankName)
	if err != nil {
		return err
	}
	c.Replace(names.ToSlice())
	return nil
}

// Replace installs a new snapshot, keeping the history of names still present.
func (c *SnapshotCatalog) Replace(names []string) {
	snapshot := mapset.NewSet[string]()
	for _, name := range names {
		if name == c.blankName {
			continue
		}
		snapshot.Add(name)
	}
	c.snapshot = snapshot
	c.history = c.history.Intersect(snapshot)
}

func (c *SnapshotCatalog) Snapshot() []string {
	names := c.snapshot.ToSlice()
	sort.Strings(names)
	return names
}

func (c *SnapshotCatalog) Len() int {
	return c.snapshot.Cardinality()
}

// History returns the names shown since the last exhaustion reset.
func (c *SnapshotCatalog) History() []string {
	names := c.history.ToSlice()
	sort.Strings(names)
	return names
}

func (c *SnapshotCatalog) PickNext() (Entry, error) {
	name, history, err := PickNext(c.snapshot, c.history, c.rnd)
	if err != nil {
		return Entry{}, err
	}
	c.history = history
	return Entry{Path: filepath.Join(c.dir, name)}, nil
}
