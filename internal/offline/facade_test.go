package offline

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, onlineBaseURL string) *Client {
	t.Helper()
	online := NewOnlineFileSource(rate.NewLimiter(rate.Inf, 0))
	c, err := NewClient(":memory:", t.TempDir(), online)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFacadeRequestCacheMissDeliversOnlineResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fresh-bytes"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var mu sync.Mutex
	var got []Response
	done := make(chan struct{}, 1)
	c.Request(StyleResource(srv.URL+"/style.json"), func(resp Response) {
		mu.Lock()
		got = append(got, resp)
		mu.Unlock()
		done <- struct{}{}
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, []byte("fresh-bytes"), got[0].Data)
}

func TestFacadeRequestDeliversCachedHitAfterOnlineSchedule(t *testing.T) {
	// Spec ordering: the cached hit is delivered only after the online
	// request has been scheduled, but a slow/never-responding origin must
	// not block the cached delivery indefinitely.
	blockCh := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blockCh
		w.Write([]byte("fresh-bytes"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res := StyleResource(srv.URL + "/style.json")
	c.Put(res, Response{Data: []byte("cached-bytes")})

	var mu sync.Mutex
	var got []Response
	cachedSeen := make(chan struct{}, 1)
	c.Request(res, func(resp Response) {
		mu.Lock()
		got = append(got, resp)
		n := len(got)
		mu.Unlock()
		if n == 1 {
			cachedSeen <- struct{}{}
		}
	})

	select {
	case <-cachedSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("cached hit never delivered")
	}
	close(blockCh)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, []byte("cached-bytes"), got[0].Data)
}

func TestFacadeGoOfflineSkipsOnlineSource(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte("fresh-bytes"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res := StyleResource(srv.URL + "/style.json")
	c.Put(res, Response{Data: []byte("cached-bytes")})
	c.GoOffline()

	done := make(chan Response, 1)
	c.Request(res, func(resp Response) { done <- resp })

	select {
	case resp := <-done:
		assert.Equal(t, []byte("cached-bytes"), resp.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
	assert.False(t, called)
}

func TestFacadeRequestCancelHandleSuppressesCallback(t *testing.T) {
	// universal property 8
	blockCh := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blockCh
		w.Write([]byte("fresh-bytes"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	called := false
	h := c.Request(StyleResource(srv.URL+"/style.json"), func(resp Response) {
		called = true
	})
	h.Cancel()
	close(blockCh)
	time.Sleep(200 * time.Millisecond)
	assert.False(t, called)
}

func TestFacadeAssetRequestBypassesCache(t *testing.T) {
	c := newTestClient(t, "")

	done := make(chan Response, 1)
	h := c.Request(Resource{Kind: KindStyle, URL: "asset://missing.json"}, func(resp Response) {
		done <- resp
	})
	_ = h

	resp := <-done
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorNotFound, resp.Error.Reason)
}

func TestFacadeRegionLifecycle(t *testing.T) {
	c := newTestClient(t, "")

	def := OfflineRegionDefinition{StyleURL: "asset://style.json", Bounds: WorldBounds()}
	created := make(chan OfflineRegion, 1)
	c.CreateOfflineRegion(def, nil, func(r OfflineRegion, err error) {
		require.NoError(t, err)
		created <- r
	})
	region := <-created

	listed := make(chan []OfflineRegion, 1)
	c.ListOfflineRegions(func(rs []OfflineRegion, err error) {
		require.NoError(t, err)
		listed <- rs
	})
	require.Len(t, <-listed, 1)

	deleted := make(chan error, 1)
	c.DeleteOfflineRegion(region.ID, func(err error) { deleted <- err })
	require.NoError(t, <-deleted)
}

func TestFacadeAccessToken(t *testing.T) {
	c := newTestClient(t, "")
	c.SetAccessToken("tok")
	assert.Equal(t, "tok", c.GetAccessToken())
}
