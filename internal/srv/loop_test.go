package srv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jypelle/bildkadro/internal/catalog"
	"github.com/jypelle/bildkadro/internal/clock"
	"github.com/jypelle/bildkadro/internal/power"
	"github.com/jypelle/bildkadro/internal/presenter"
	"github.com/jypelle/bildkadro/internal/recovery"
	"github.com/jypelle/bildkadro/internal/remote"
	"github.com/jypelle/bildkadro/internal/srv/device"
	"github.com/jypelle/bildkadro/internal/srv/event"
)

var testBounds = image.Rect(0, 0, 8, 8)

type fakeSurface struct {
	composed image.Image
}

func (s *fakeSurface) Compose(img image.Image) error {
	s.composed = img
	return nil
}

func (s *fakeSurface) Release() error {
	s.composed = nil
	return nil
}

func (s *fakeSurface) Bounds() image.Rectangle {
	return testBounds
}

type fakeBacklight struct {
	levels []float64
}

func (b *fakeBacklight) SetBrightness(level float64) error {
	b.levels = append(b.levels, level)
	return nil
}

func (b *fakeBacklight) last() float64 {
	if len(b.levels) == 0 {
		return -1
	}
	return b.levels[len(b.levels)-1]
}

type fakeLoader struct{}

func (fakeLoader) Load(path string) (image.Image, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return image.NewRGBA(testBounds), nil
}

type fakeTouch struct {
	pending int
}

func (f *fakeTouch) Touched() bool {
	if f.pending > 0 {
		f.pending--
		return true
	}
	return false
}

func (f *fakeTouch) Close() error {
	return nil
}

type fakeNotifier struct {
	notifications []device.Notification
}

func (n *fakeNotifier) Notify(notification device.Notification) {
	n.notifications = append(n.notifications, notification)
}

func (n *fakeNotifier) count(notification device.Notification) int {
	total := 0
	for _, n := range n.notifications {
		if n == notification {
			total++
		}
	}
	return total
}

type manifestServer struct {
	lock      sync.Mutex
	body      string
	fetches   int
	downloads map[string]int
}

func newManifestServer(t *testing.T) (*manifestServer, *httptest.Server) {
	s := &manifestServer{downloads: make(map[string]int)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		defer s.lock.Unlock()
		if strings.HasPrefix(r.URL.Path, "/api/") {
			s.fetches++
			fmt.Fprint(w, s.body)
			return
		}
		s.downloads[filepath.Base(r.URL.Path)]++
		fmt.Fprint(w, "BM")
	}))
	t.Cleanup(server.Close)
	return s, server
}

func (s *manifestServer) set(body string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.body = body
}

func (s *manifestServer) fetchCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.fetches
}

func (s *manifestServer) downloadCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	total := 0
	for _, n := range s.downloads {
		total += n
	}
	return total
}

type testRig struct {
	loop      *Loop
	clock     *clock.Fake
	backlight *fakeBacklight
	surface   *fakeSurface
	touch     *fakeTouch
	notifier  *fakeNotifier
	api       chan event.ApiEvent
	changes   []power.State
	dir       string
}

var testLoopConfig = LoopConfig{
	PollInterval:    100 * time.Millisecond,
	DisplayTime:     10 * time.Minute,
	DisplayTimeUnit: time.Minute,
	RefreshInterval: 5 * time.Minute,
	RetryInterval:   time.Minute,
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	return &testRig{
		clock:     clock.NewFake(time.Unix(10000, 0)),
		backlight: &fakeBacklight{},
		surface:   &fakeSurface{},
		touch:     &fakeTouch{},
		notifier:  &fakeNotifier{},
		api:       make(chan event.ApiEvent, 4),
		dir:       t.TempDir(),
	}
}

func (r *testRig) deps(initial power.State, debounce time.Duration) LoopDeps {
	return LoopDeps{
		Clock: r.clock,
		Power: power.NewMachine(initial, debounce),
		Presenter: presenter.NewController(r.surface, r.backlight, fakeLoader{}, r.clock, presenter.Config{
			Steps:     2,
			StepDelay: time.Second,
		}),
		Touch:     r.touch,
		ApiEvents: r.api,
		Notifier:  r.notifier,
		OnScreenChange: func(state power.State) {
			r.changes = append(r.changes, state)
		},
	}
}

func newRemoteRig(t *testing.T, baseURL string, initial power.State, threshold int) *testRig {
	t.Helper()
	r := newRig(t)

	deps := r.deps(initial, 500*time.Millisecond)
	deps.Snapshot = catalog.NewSnapshotCatalog(r.dir, "black.bmp", rand.New(rand.NewSource(1)))
	deps.Syncer = remote.NewSyncer(remote.NewClient(baseURL+"/api", "k3y", 5*time.Second), r.dir, "black.bmp")
	deps.Policy = recovery.NewPolicy(threshold)
	deps.Blank = presenter.Black(testBounds)

	cfg := testLoopConfig
	cfg.Remote = true
	loop, err := NewLoop(cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	r.loop = loop
	return r
}

func newLocalRig(t *testing.T, topics map[string][]string) *testRig {
	t.Helper()
	r := newRig(t)
	for topic, names := range topics {
		if err := os.MkdirAll(filepath.Join(r.dir, topic), 0755); err != nil {
			t.Fatal(err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(r.dir, topic, name), []byte("BM"), 0644); err != nil {
				t.Fatal(err)
			}
		}
	}

	topicCatalog, err := catalog.NewTopicCatalog(r.dir, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	deps := r.deps(power.SCREEN_ON, 500*time.Millisecond)
	deps.Topics = topicCatalog

	loop, err := NewLoop(testLoopConfig, deps)
	if err != nil {
		t.Fatal(err)
	}
	r.loop = loop
	return r
}

func (r *testRig) step(t *testing.T) {
	t.Helper()
	if err := r.loop.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
}

func TestLoop_ManifestScenario(t *testing.T) {
	server, ts := newManifestServer(t)
	server.set(fmt.Sprintf(`{"display_time": 2, "images": ["%s/img/a.bmp", "%s/img/b.bmp"]}`, ts.URL, ts.URL))

	r := newRemoteRig(t, ts.URL, power.SCREEN_ON, 3)
	if err := r.loop.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	if server.downloadCount() != 2 {
		t.Fatalf("downloads = %d, want 2", server.downloadCount())
	}
	snapshot := r.loop.Snapshot.Snapshot()
	if len(snapshot) != 2 || snapshot[0] != "a.bmp" || snapshot[1] != "b.bmp" {
		t.Fatalf("snapshot = %v", snapshot)
	}

	r.step(t)

	state := r.loop.State()
	if state.DisplayDuration != 120*time.Second {
		t.Fatalf("DisplayDuration = %v, want 2m0s", state.DisplayDuration)
	}
	if !state.NextRotation.Equal(r.clock.Now().Add(120 * time.Second)) {
		t.Fatalf("NextRotation = %v, want %v", state.NextRotation, r.clock.Now().Add(120*time.Second))
	}
	if current, ok := r.loop.Presenter.Current(); !ok || (current != "a.bmp" && current != "b.bmp") {
		t.Fatalf("current = %q, %v", current, ok)
	}
	if r.notifier.count(device.SHOWN_NOTIFICATION) != 1 {
		t.Fatalf("shown notifications = %d", r.notifier.count(device.SHOWN_NOTIFICATION))
	}

	// Nothing happens before the deadline
	r.clock.Advance(119 * time.Second)
	before, _ := r.loop.Presenter.Current()
	r.step(t)
	if r.notifier.count(device.SHOWN_NOTIFICATION) != 1 {
		t.Fatal("rotated before the deadline")
	}

	// The other image comes next
	r.clock.Advance(time.Second)
	r.step(t)
	after, _ := r.loop.Presenter.Current()
	if after == before {
		t.Fatalf("same image shown twice in a row: %s", after)
	}
}

func TestLoop_TouchDebounce(t *testing.T) {
	server, ts := newManifestServer(t)
	server.set(fmt.Sprintf(`{"display_time": 1, "image": "%s/img/a.bmp"}`, ts.URL))

	r := newRemoteRig(t, ts.URL, power.SCREEN_ON, 3)
	if err := r.loop.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	r.touch.pending = 1
	r.step(t)
	if r.loop.Power.IsOn() {
		t.Fatal("screen still ON after touch")
	}
	if current, _ := r.loop.Presenter.Current(); current != "blank" {
		t.Fatalf("current = %q, want blank", current)
	}
	if r.backlight.last() != 0 {
		t.Fatalf("brightness = %v, want 0", r.backlight.last())
	}

	r.clock.Advance(200 * time.Millisecond)
	r.touch.pending = 1
	r.step(t)
	if len(r.changes) != 1 {
		t.Fatalf("changes = %v, want a single transition", r.changes)
	}
	if r.loop.Power.IsOn() {
		t.Fatal("debounced touch turned the screen back ON")
	}
	if r.notifier.count(device.TOUCH_NOTIFICATION) != 1 {
		t.Fatalf("touch notifications = %d", r.notifier.count(device.TOUCH_NOTIFICATION))
	}
	if r.loop.Status.Get().Screen != "OFF" {
		t.Fatalf("published screen = %q", r.loop.Status.Get().Screen)
	}
}

func TestLoop_OffToOnRefreshesAndRotates(t *testing.T) {
	server, ts := newManifestServer(t)
	server.set(fmt.Sprintf(`{"display_time": 1, "images": ["%s/img/a.bmp"]}`, ts.URL))

	r := newRemoteRig(t, ts.URL, power.SCREEN_OFF, 3)
	if err := r.loop.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if current, _ := r.loop.Presenter.Current(); current != "blank" {
		t.Fatalf("current = %q, want blank while OFF", current)
	}
	fetches := server.fetchCount()

	r.touch.pending = 1
	r.step(t)

	if !r.loop.Power.IsOn() {
		t.Fatal("screen still OFF")
	}
	if server.fetchCount() != fetches+1 {
		t.Fatalf("fetches = %d, want an immediate refresh", server.fetchCount())
	}
	if current, _ := r.loop.Presenter.Current(); current != "a.bmp" {
		t.Fatalf("current = %q, want a.bmp", current)
	}
}

func TestLoop_BackgroundRefreshWhileOff(t *testing.T) {
	server, ts := newManifestServer(t)
	server.set(fmt.Sprintf(`{"display_time": 1, "images": ["%s/img/a.bmp"]}`, ts.URL))

	r := newRemoteRig(t, ts.URL, power.SCREEN_OFF, 3)
	if err := r.loop.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	nextRefresh := r.loop.State().NextRefresh

	server.set(fmt.Sprintf(`{"display_time": 1, "images": ["%s/img/b.bmp"]}`, ts.URL))
	r.clock.Advance(5 * time.Minute)
	r.step(t)

	if server.fetchCount() != 2 {
		t.Fatalf("fetches = %d, want 2", server.fetchCount())
	}
	if !r.loop.State().NextRefresh.After(nextRefresh) {
		t.Fatal("refresh not rescheduled")
	}
	if snapshot := r.loop.Snapshot.Snapshot(); len(snapshot) != 1 || snapshot[0] != "b.bmp" {
		t.Fatalf("snapshot = %v", snapshot)
	}
	if _, err := os.Stat(filepath.Join(r.dir, "a.bmp")); !os.IsNotExist(err) {
		t.Fatal("orphan a.bmp not pruned")
	}
	if current, _ := r.loop.Presenter.Current(); current != "blank" {
		t.Fatalf("rotation ran while OFF: current = %q", current)
	}
}

func TestLoop_TransportFailureRequiresRestart(t *testing.T) {
	_, ts := newManifestServer(t)
	url := ts.URL
	ts.Close()

	r := newRemoteRig(t, url, power.SCREEN_ON, 3)
	err := r.loop.Init(context.Background())
	if !errors.Is(err, recovery.ErrRestartRequired) {
		t.Fatalf("got %v, want ErrRestartRequired", err)
	}
}

func TestLoop_ContentFailureThreshold(t *testing.T) {
	server, ts := newManifestServer(t)
	server.set(`{"display_time": 1, "images": []}`)

	r := newRemoteRig(t, ts.URL, power.SCREEN_ON, 2)
	if err := r.loop.Init(context.Background()); err != nil {
		t.Fatalf("first content failure escalated: %v", err)
	}
	if r.loop.Policy.Failures() != 1 {
		t.Fatalf("failures = %d", r.loop.Policy.Failures())
	}

	// No images: the status screen is shown, nothing is rotated
	r.step(t)
	if current, _ := r.loop.Presenter.Current(); current != "no-images" {
		t.Fatalf("current = %q, want the no-images screen", current)
	}

	// The retry happens on the retry interval, not on the refresh interval
	r.clock.Advance(time.Minute)
	err := r.loop.Step(context.Background())
	if !errors.Is(err, recovery.ErrFatalContent) {
		t.Fatalf("got %v, want ErrFatalContent", err)
	}
}

func TestLoop_ApiTouch(t *testing.T) {
	r := newLocalRig(t, map[string][]string{"cats": {"a.bmp"}})

	first := make(chan error, 1)
	second := make(chan error, 1)
	r.api <- event.ApiEvent{Result: first, Data: event.ApiEventTouchData{}}
	r.step(t)
	if err := <-first; err != nil {
		t.Fatalf("first touch: %v", err)
	}
	if r.loop.Power.IsOn() {
		t.Fatal("screen still ON")
	}

	r.clock.Advance(100 * time.Millisecond)
	r.api <- event.ApiEvent{Result: second, Data: event.ApiEventTouchData{}}
	r.step(t)
	if err := <-second; !errors.Is(err, event.ErrTouchIgnored) {
		t.Fatalf("second touch: %v, want ErrTouchIgnored", err)
	}
}

func TestLoop_LocalRotation(t *testing.T) {
	r := newLocalRig(t, map[string][]string{"cats": {"a.bmp", "b.bmp"}, "empty": nil})
	if err := r.loop.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	r.step(t)
	first, ok := r.loop.Presenter.Current()
	if !ok {
		t.Fatal("nothing shown")
	}
	if !r.loop.State().NextRotation.Equal(r.clock.Now().Add(10 * time.Minute)) {
		t.Fatalf("NextRotation = %v", r.loop.State().NextRotation)
	}

	r.clock.Advance(10 * time.Minute)
	r.step(t)
	second, _ := r.loop.Presenter.Current()
	if second == first {
		t.Fatalf("%s shown twice before the topic was exhausted", first)
	}

	// OFF: no rotation, image released, brightness zeroed
	r.touch.pending = 1
	r.step(t)
	if _, ok := r.loop.Presenter.Current(); ok {
		t.Fatal("image still composed while OFF")
	}
	r.clock.Advance(time.Hour)
	r.step(t)
	if _, ok := r.loop.Presenter.Current(); ok {
		t.Fatal("rotation ran while OFF")
	}

	// ON: rotation is due immediately
	r.touch.pending = 1
	r.step(t)
	if _, ok := r.loop.Presenter.Current(); !ok {
		t.Fatal("nothing shown after turning ON")
	}
}

func TestLoop_LocalNoImages(t *testing.T) {
	r := newLocalRig(t, map[string][]string{"empty": nil})
	r.step(t)
	if current, _ := r.loop.Presenter.Current(); current != "no-images" {
		t.Fatalf("current = %q, want no-images", current)
	}
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	r := newLocalRig(t, map[string][]string{"cats": {"a.bmp"}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.loop.Run(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestLoop_WatchedTopicRescan(t *testing.T) {
	r := newLocalRig(t, map[string][]string{"cats": {"a.bmp"}})
	watcher, err := catalog.NewWatcher(r.dir)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()
	r.loop.Watcher = watcher

	r.step(t)
	if current, _ := r.loop.Presenter.Current(); current != "a.bmp" {
		t.Fatalf("current = %q, want a.bmp", current)
	}

	if err := os.WriteFile(filepath.Join(r.dir, "cats", "b.bmp"), []byte("BM"), 0644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for len(r.loop.Topics.Entries("cats")) != 2 {
		if time.Now().After(deadline) {
			t.Fatal("new bitmap not picked up by the rescan")
		}
		time.Sleep(10 * time.Millisecond)
		r.step(t)
	}

	r.clock.Advance(10 * time.Minute)
	r.step(t)
	if current, _ := r.loop.Presenter.Current(); current != "b.bmp" {
		t.Fatalf("current = %q, want b.bmp", current)
	}
}

func TestLoop_RecoveredRefreshClearsLastError(t *testing.T) {
	server, ts := newManifestServer(t)
	server.set(`{"display_time": 1, "images": []}`)
	r := newRemoteRig(t, ts.URL, power.SCREEN_ON, 5)
	if err := r.loop.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.loop.Status.Get().LastError == "" {
		t.Fatal("failed refresh not reported")
	}

	server.set(fmt.Sprintf(`{"display_time": 1, "images": ["%s/img/a.bmp"]}`, ts.URL))
	r.clock.Advance(time.Minute)
	r.step(t)
	if got := r.loop.Status.Get().LastError; got != "" {
		t.Fatalf("LastError = %q after a successful refresh", got)
	}
}
