// Package catalog resolves the set of displayable images and picks the next one to show
package catalog

import (
	"errors"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

var ErrNoImagesAvailable = errors.New("no images available")

// SupportedExt holds lowercase extensions.
var SupportedExt = mapset.NewSet(
	".bmp",
)

// Entry identifies one displayable image.
type Entry struct {
	Topic string
	Path  string
}

// Name is the identifier used by shown-history sets.
func (e Entry) Name() string {
	return filepath.Base(e.Path)
}

// Picker selects the next image of a rotation.
type Picker interface {
	PickNext() (Entry, error)
}

// IsSupported reports whether name is a visible bitmap file name.
func IsSupported(name string) bool {
	if name == "" || name[0] == '.' {
		return false
	}
	return SupportedExt.Contains(strings.ToLower(filepath.Ext(name)))
}

// PickNext draws uniformly from candidates minus history. History is reset once every
// candidate has been shown, so no name is drawn twice within one rotation cycle.
func PickNext(candidates mapset.Set[string], history mapset.Set[string], rnd *rand.Rand) (string, mapset.Set[string], error) {
	if candidates.Cardinality() == 0 {
		return "", history, ErrNoImagesAvailable
	}

	next := history.Intersect(candidates)
	available := candidates.Difference(next)
	if available.Cardinality() == 0 {
		next = mapset.NewSet[string]()
		available = candidates
	}

	names := available.ToSlice()
	sort.Strings(names)
	name := names[rnd.Intn(len(names))]

	next.Add(name)
	if candidates.IsSubset(next) {
		next.Clear()
	}
	return name, next, nil
}
