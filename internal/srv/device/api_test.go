package device

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jypelle/bildkadro/apimodel"
	"github.com/jypelle/bildkadro/internal/srv/config"
	"github.com/jypelle/bildkadro/internal/srv/event"
)

const testApiKey = "s3cr3t"

func newTestApi(t *testing.T) (*Api, *httptest.Server) {
	t.Helper()
	api := NewApi(t.TempDir(), config.ApiParam{Enabled: true, ApiKey: testApiKey}, func() apimodel.Status {
		return apimodel.Status{Mode: "remote", Screen: "ON", Images: 2}
	})
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return api, server
}

func doRequest(t *testing.T, method, url, apiKey string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("x-api-key", apiKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestApi_RequiresKey(t *testing.T) {
	_, server := newTestApi(t)

	resp := doRequest(t, http.MethodGet, server.URL+"/api/is_alive", "wrong")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/api/is_alive", testApiKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestApi_Status(t *testing.T) {
	_, server := newTestApi(t)

	resp := doRequest(t, http.MethodGet, server.URL+"/api/status", testApiKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var status apimodel.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Screen != "ON" || status.Images != 2 {
		t.Fatalf("status = %+v", status)
	}
}

func TestApi_TouchGoesThroughLoop(t *testing.T) {
	api, server := newTestApi(t)

	answers := []error{nil, event.ErrTouchIgnored}
	go func() {
		for _, answer := range answers {
			ev := <-api.EventChannel()
			if _, ok := ev.Data.(event.ApiEventTouchData); !ok {
				t.Errorf("unexpected event %T", ev.Data)
			}
			ev.Result <- answer
		}
	}()

	resp := doRequest(t, http.MethodPost, server.URL+"/api/screen/touch", testApiKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accepted touch: status = %d", resp.StatusCode)
	}
	resp = doRequest(t, http.MethodPost, server.URL+"/api/screen/touch", testApiKey)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("ignored touch: status = %d", resp.StatusCode)
	}
}

func TestApi_TouchWithoutLoop(t *testing.T) {
	api, server := newTestApi(t)
	api.timeout = 50 * time.Millisecond

	resp := doRequest(t, http.MethodPost, server.URL+"/api/screen/touch", testApiKey)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestApi_UnknownRoute(t *testing.T) {
	_, server := newTestApi(t)

	resp := doRequest(t, http.MethodGet, server.URL+"/api/unknown", testApiKey)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
