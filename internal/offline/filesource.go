package offline

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// assetScheme is the only URL scheme the facade routes to the asset file
// source rather than treating as networkable (spec.md §4.4).
const assetScheme = "asset://"

// Handle is the sole cancellation primitive a FileSource hands back. Go has
// no destructor to hook "the caller dropped the value" the way the
// original's move-only request object does, so cancellation here is an
// explicit Cancel() call instead of an implicit drop; callers that want the
// "drop cancels" contract should call Cancel in a defer. Cancel is safe to
// call more than once and safe to call concurrently with the callback
// firing: whichever happens first wins, atomically.
type Handle struct {
	mu        sync.Mutex
	cancelled bool
}

func newHandle() *Handle {
	return &Handle{}
}

// Cancel marks the handle cancelled. A FileSource implementation MUST check
// Cancelled() after any blocking step and before invoking the callback.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// FileSource is the external collaborator interface the facade and download
// coordinator consume; it is implemented by the asset source and the online
// source, and by stubs in tests.
type FileSource interface {
	Request(r Resource, callback func(Response)) *Handle
}

// AssetFileSource reads resources whose URL begins with "asset://" from a
// read-only root directory configured at construction.
type AssetFileSource struct {
	root string
}

// NewAssetFileSource returns a source rooted at dir.
func NewAssetFileSource(dir string) *AssetFileSource {
	return &AssetFileSource{root: dir}
}

// Request reads r.URL (with the asset:// prefix stripped) relative to the
// source's root. Reads are synchronous local I/O, matching the original's
// asset source; the callback fires before Request returns.
func (a *AssetFileSource) Request(r Resource, callback func(Response)) *Handle {
	h := newHandle()
	rel := strings.TrimPrefix(r.URL, assetScheme)
	path := filepath.Join(a.root, filepath.FromSlash(rel))

	data, err := os.ReadFile(path)
	if h.Cancelled() {
		return h
	}
	if err != nil {
		reason := ErrorOther
		if os.IsNotExist(err) {
			reason = ErrorNotFound
		}
		callback(Response{Error: &ResponseError{Reason: reason, Message: err.Error()}})
		return h
	}
	callback(Response{Data: data})
	return h
}

// OnlineFileSource issues HTTP requests for networkable resources, honoring
// revalidation hints and a request-rate limit.
type OnlineFileSource struct {
	client      *http.Client
	limiter     *rate.Limiter
	accessToken string
}

// NewOnlineFileSource returns a source that starts requests no faster than
// limiter allows. It does not cap how many requests are in flight at once.
// A nil limiter means unlimited.
func NewOnlineFileSource(limiter *rate.Limiter) *OnlineFileSource {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &OnlineFileSource{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
	}
}

// SetAccessToken stores token for AccessToken to return. Request does not
// add it to any URL or header.
func (o *OnlineFileSource) SetAccessToken(token string) {
	o.accessToken = token
}

// AccessToken returns the currently configured token.
func (o *OnlineFileSource) AccessToken() string {
	return o.accessToken
}

// Request issues an HTTP GET for r.URL on a background goroutine. The
// callback never fires once h.Cancel has been called, checked after every
// blocking step (rate limiting, then the round trip itself).
func (o *OnlineFileSource) Request(r Resource, callback func(Response)) *Handle {
	h := newHandle()

	go func() {
		if err := o.limiter.Wait(context.Background()); err != nil {
			return
		}
		if h.Cancelled() {
			return
		}

		req, err := http.NewRequest(http.MethodGet, r.URL, nil)
		if err != nil {
			if !h.Cancelled() {
				callback(Response{Error: &ResponseError{Reason: ErrorOther, Message: err.Error()}})
			}
			return
		}
		if r.PriorEtag != nil {
			req.Header.Set("If-None-Match", *r.PriorEtag)
		}
		if r.PriorModified != nil {
			req.Header.Set("If-Modified-Since", r.PriorModified.UTC().Format(http.TimeFormat))
		}

		resp, err := o.client.Do(req)
		if h.Cancelled() {
			if resp != nil {
				resp.Body.Close()
			}
			return
		}
		if err != nil {
			callback(Response{Error: &ResponseError{Reason: ErrorConnection, Message: err.Error()}})
			return
		}
		defer resp.Body.Close()

		callback(decodeHTTPResponse(r, resp))
	}()

	return h
}

func decodeHTTPResponse(r Resource, resp *http.Response) Response {
	switch {
	case resp.StatusCode == http.StatusNotModified:
		return revalidatedResponse(r, resp)
	case resp.StatusCode == http.StatusNotFound:
		return Response{Error: &ResponseError{Reason: ErrorNotFound, Message: resp.Status}}
	case resp.StatusCode >= 500:
		return Response{Error: &ResponseError{Reason: ErrorServer, Message: resp.Status}}
	case resp.StatusCode >= 400:
		return Response{Error: &ResponseError{Reason: ErrorOther, Message: resp.Status}}
	default:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return Response{Error: &ResponseError{Reason: ErrorConnection, Message: err.Error()}}
		}
		return freshResponse(body, resp)
	}
}

// revalidatedResponse builds the short "not modified" response the online
// source is expected to produce for a 304: fresh modified/expires/etag,
// carrying over the caller's revalidation hints where the response doesn't
// supply its own, and no data (the worker must not overwrite cached data).
func revalidatedResponse(r Resource, resp *http.Response) Response {
	out := Response{Modified: r.PriorModified, Etag: r.PriorEtag, Expires: r.PriorExpires}
	applyFreshnessHeaders(&out, resp)
	return out
}

func freshResponse(body []byte, resp *http.Response) Response {
	out := Response{Data: body}
	applyFreshnessHeaders(&out, resp)
	return out
}

func applyFreshnessHeaders(out *Response, resp *http.Response) {
	if etag := resp.Header.Get("ETag"); etag != "" {
		out.Etag = &etag
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			out.Modified = &t
		}
	}
	if exp := resp.Header.Get("Expires"); exp != "" {
		if t, err := http.ParseTime(exp); err == nil {
			out.Expires = &t
		}
	}
}
