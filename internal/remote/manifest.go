// Package remote fetches the display manifest and keeps the local image folder in line with it
package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"path"
	"time"

	"github.com/jypelle/bildkadro/internal/catalog"
	"github.com/sirupsen/logrus"
)

// Manifest is the parsed server response.
type Manifest struct {
	DisplayTime float64
	Images      []string
}

// maxDisplayTime bounds display_time: one year counted in minutes.
const maxDisplayTime = 525600

type rawManifest struct {
	DisplayTime *float64        `json:"display_time"`
	Image       json.RawMessage `json:"image"`
	Images      json.RawMessage `json:"images"`
}

// DisplayDuration converts DisplayTime using the deployment unit, saturating at the
// largest representable duration.
func (m *Manifest) DisplayDuration(unit time.Duration) time.Duration {
	d := m.DisplayTime * float64(unit)
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// ParseManifest decodes a manifest body. Every shape problem is a *ContentError.
func ParseManifest(body []byte) (*Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ContentError{Err: fmt.Errorf("malformed json: %w", err)}
	}

	if raw.DisplayTime == nil {
		return nil, &ContentError{Err: errors.New("missing display_time")}
	}
	if *raw.DisplayTime <= 0 {
		return nil, &ContentError{Err: fmt.Errorf("display_time must be positive, got %v", *raw.DisplayTime)}
	}
	if *raw.DisplayTime > maxDisplayTime {
		return nil, &ContentError{Err: fmt.Errorf("display_time %v exceeds %d", *raw.DisplayTime, maxDisplayTime)}
	}

	var refs []string
	for _, field := range []json.RawMessage{raw.Images, raw.Image} {
		if len(field) == 0 || string(field) == "null" {
			continue
		}
		fieldRefs, err := decodeReferences(field)
		if err != nil {
			return nil, &ContentError{Err: err}
		}
		refs = append(refs, fieldRefs...)
	}

	m := &Manifest{DisplayTime: *raw.DisplayTime}
	seen := make(map[string]bool)
	for _, ref := range refs {
		name, err := FileName(ref)
		if err != nil {
			logrus.Warnf("Ignoring image reference %q: %v", ref, err)
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		m.Images = append(m.Images, ref)
	}

	if len(m.Images) == 0 {
		return nil, &ContentError{Err: ErrEmptyManifest}
	}
	return m, nil
}

func decodeReferences(field json.RawMessage) ([]string, error) {
	var single string
	if err := json.Unmarshal(field, &single); err == nil {
		return []string{single}, nil
	}
	var list []string
	if err := json.Unmarshal(field, &list); err != nil {
		return nil, fmt.Errorf("image reference is neither a string nor a list of strings: %w", err)
	}
	return list, nil
}

// FileName derives the local file name of an image reference: its last path segment.
func FileName(ref string) (string, error) {
	if ref == "" {
		return "", errors.New("empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || !catalog.IsSupported(name) {
		return "", fmt.Errorf("%q is not a supported bitmap", name)
	}
	return name, nil
}

// FileNames maps local file names to their reference.
func (m *Manifest) FileNames() map[string]string {
	names := make(map[string]string, len(m.Images))
	for _, ref := range m.Images {
		if name, err := FileName(ref); err == nil {
			names[name] = ref
		}
	}
	return names
}
