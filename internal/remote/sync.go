package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jypelle/bildkadro/internal/catalog"
	"github.com/sirupsen/logrus"
)

// SyncResult describes one synchronisation pass.
type SyncResult struct {
	Local      []string
	Downloaded []string
	Deleted    []string
	Failed     []string
}

// Syncer mirrors the manifest into a flat local folder.
type Syncer struct {
	client    *Client
	dir       string
	blankName string
}

func NewSyncer(client *Client, dir string, blankName string) *Syncer {
	return &Syncer{
		client:    client,
		dir:       dir,
		blankName: blankName,
	}
}

func (s *Syncer) Dir() string {
	return s.dir
}

func (s *Syncer) Fetch(ctx context.Context) (*Manifest, error) {
	return s.client.FetchManifest(ctx)
}

// Sync downloads the referenced images missing locally, then deletes every local bitmap
// the manifest no longer references. A transport failure aborts the pass before any
// deletion. A single failed download is skipped and reported in Failed.
func (s *Syncer) Sync(ctx context.Context, m *Manifest) (*SyncResult, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, &StorageError{Path: s.dir, Err: err}
	}

	localFiles, err := catalog.LocalBitmaps(s.dir, s.blankName)
	if err != nil {
		return nil, &StorageError{Path: s.dir, Err: err}
	}

	refs := m.FileNames()
	delete(refs, s.blankName)
	remoteFiles := mapset.NewSet[string]()
	for name := range refs {
		remoteFiles.Add(name)
	}

	result := &SyncResult{}

	toDownload := remoteFiles.Difference(localFiles).ToSlice()
	sort.Strings(toDownload)
	for _, name := range toDownload {
		logrus.Infof("Downloading %s", name)
		err := s.client.Download(ctx, refs[name], filepath.Join(s.dir, name))
		if err != nil {
			var transportErr *TransportError
			if errors.As(err, &transportErr) {
				return nil, err
			}
			logrus.Warnf("Unable to download %s: %v", name, err)
			result.Failed = append(result.Failed, name)
			continue
		}
		result.Downloaded = append(result.Downloaded, name)
	}
	for _, name := range remoteFiles.Intersect(localFiles).ToSlice() {
		logrus.Debugf("%s already exists", name)
	}

	toDelete := localFiles.Difference(remoteFiles).ToSlice()
	sort.Strings(toDelete)
	for _, name := range toDelete {
		logrus.Infof("Deleting %s", name)
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("Unable to remove local file %s: %v", name, err)
			continue
		}
		result.Deleted = append(result.Deleted, name)
	}

	local, err := catalog.LocalBitmaps(s.dir, s.blankName)
	if err != nil {
		return nil, &StorageError{Path: s.dir, Err: err}
	}
	result.Local = local.ToSlice()
	sort.Strings(result.Local)

	return result, nil
}
