package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jypelle/bildkadro/internal/version"
	"github.com/sirupsen/logrus"
)

const maxManifestSize = 1 << 20

// Client talks to the manifest server. It carries no retry logic: failures are
// classified and handed back to the caller.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient builds the manifest endpoint as base URL followed by the API key path segment.
func NewClient(baseURL string, apiKey string, timeout time.Duration) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		endpoint: baseURL + apiKey + "/",
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// FetchManifest issues one GET on the manifest endpoint.
func (c *Client) FetchManifest(ctx context.Context) (*Manifest, error) {
	logrus.Infof("Fetching manifest from %s", c.endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, &ContentError{URL: c.endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "fetch", URL: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, &TransportError{Op: "fetch", URL: c.endpoint, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ContentError{URL: c.endpoint, Err: fmt.Errorf("server returned status %d", resp.StatusCode)}
	}

	logrus.Debugf("Manifest body: %s", body)

	m, err := ParseManifest(body)
	if err != nil {
		if ce, ok := err.(*ContentError); ok {
			ce.URL = c.endpoint
		}
		return nil, err
	}
	logrus.Infof("Manifest: display_time %v, %d images", m.DisplayTime, len(m.Images))
	return m, nil
}

// readTracker remembers read errors so that a failed copy can be blamed on the network
// or on local storage.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

// Download saves the payload of ref verbatim to dst. The file is written next to dst
// under a hidden temporary name and renamed once complete, so dst is either the previous
// content or the whole new payload.
func (c *Client) Download(ctx context.Context, ref string, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return &ContentError{URL: ref, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: "download", URL: ref, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ContentError{URL: ref, Err: fmt.Errorf("server returned status %d", resp.StatusCode)}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return &StorageError{Path: dst, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	tracker := &readTracker{r: resp.Body}
	if _, err := io.Copy(tmp, tracker); err != nil {
		if tracker.err != nil {
			return &TransportError{Op: "download", URL: ref, Err: err}
		}
		return &StorageError{Path: dst, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &StorageError{Path: dst, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Path: dst, Err: err}
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return &StorageError{Path: dst, Err: err}
	}
	committed = true
	return nil
}
