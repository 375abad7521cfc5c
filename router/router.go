package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"

	"github.com/fitfriendsclub/khyrie-offline/cachestore"
)

// Response is the uniform result of routing a request. The router's contract
// is "always return a response": network failures surface as cached payloads
// or deterministic fallbacks, never as errors.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	// FromCache reports whether the body was served from a cache partition.
	FromCache bool
	// Fallback reports whether the body is a synthetic offline placeholder.
	Fallback bool
}

// Fetcher performs the actual network fetch. Implementations return an error
// only for transport failures; an HTTP error status is still a response.
type Fetcher interface {
	Fetch(ctx context.Context, req ClassifiedRequest) (*Response, error)
}

// Option configures optional behaviour for the Router.
type Option func(*Router)

// WithLogger overrides the logger used to report cache errors.
func WithLogger(logger *log.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// Router applies the per-kind caching strategy to classified requests.
type Router struct {
	cache         *cachestore.Store
	fetcher       Fetcher
	versionPrefix string
	logger        *log.Logger
}

// New constructs a Router over the shared cache store.
func New(cache *cachestore.Store, fetcher Fetcher, versionPrefix string, opts ...Option) *Router {
	r := &Router{
		cache:         cache,
		fetcher:       fetcher,
		versionPrefix: versionPrefix,
		logger:        log.New(log.Writer(), "[router] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Activate evicts partitions from previous cache versions and opens the
// current ones. It runs once at process start.
func (r *Router) Activate() error {
	if err := r.cache.DeleteAllExcept(r.versionPrefix); err != nil {
		return err
	}
	for _, class := range []cachestore.ContentClass{
		cachestore.ClassStatic,
		cachestore.ClassDynamic,
		cachestore.ClassAPI,
		cachestore.ClassImages,
	} {
		if _, err := r.cache.Open(cachestore.PartitionName(r.versionPrefix, class)); err != nil {
			return err
		}
	}
	return nil
}

// Route fetches rawURL with the strategy its classification selects.
func (r *Router) Route(ctx context.Context, method, rawURL string) *Response {
	return r.Handle(ctx, NewRequest(method, rawURL))
}

// Handle applies the strategy for an already-classified request.
func (r *Router) Handle(ctx context.Context, req ClassifiedRequest) *Response {
	requestsTotal.WithLabelValues(string(req.Kind)).Inc()

	switch req.Kind {
	case KindStatic, KindImage:
		return r.cacheFirst(ctx, req)
	default:
		return r.networkFirst(ctx, req)
	}
}

func (r *Router) cacheFirst(ctx context.Context, req ClassifiedRequest) *Response {
	if resp, ok := r.lookup(req); ok {
		cacheHits.WithLabelValues(string(req.Kind)).Inc()
		return resp
	}

	resp, err := r.fetcher.Fetch(ctx, req)
	if err != nil {
		r.logger.Printf("fetch failed (kind=%s, url=%s): %v", req.Kind, req.URL, err)
		networkFailures.WithLabelValues(string(req.Kind)).Inc()
		return r.fallback(req)
	}

	r.mirror(req, resp)
	return resp
}

func (r *Router) networkFirst(ctx context.Context, req ClassifiedRequest) *Response {
	resp, err := r.fetcher.Fetch(ctx, req)
	if err == nil {
		r.mirror(req, resp)
		return resp
	}

	r.logger.Printf("fetch failed (kind=%s, url=%s): %v", req.Kind, req.URL, err)
	networkFailures.WithLabelValues(string(req.Kind)).Inc()

	if cached, ok := r.lookup(req); ok {
		cacheHits.WithLabelValues(string(req.Kind)).Inc()
		return cached
	}

	return r.fallback(req)
}

func (r *Router) fallback(req ClassifiedRequest) *Response {
	fallbacksTotal.WithLabelValues(string(req.Kind)).Inc()

	var resp *Response
	switch req.Kind {
	case KindImage:
		resp = imageFallback()
	case KindStatic:
		resp = staticFallback()
	case KindAPI:
		resp = apiFallback(requestPath(req.URL))
	default:
		resp = dynamicFallback()
	}
	resp.Fallback = true
	return resp
}

// storedResponse is the partition payload encoding for a mirrored response.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// lookup reads a previously mirrored response from the request's partition.
func (r *Router) lookup(req ClassifiedRequest) (*Response, bool) {
	partition, err := r.partition(req.Kind)
	if err != nil {
		r.logger.Printf("open partition for %s: %v", req.Kind, err)
		return nil, false
	}

	payload, found, err := partition.Match(cacheKey(req))
	if err != nil {
		r.logger.Printf("cache match (kind=%s, url=%s): %v", req.Kind, req.URL, err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var stored storedResponse
	if err := json.Unmarshal(payload, &stored); err != nil {
		r.logger.Printf("corrupt cache entry (kind=%s, url=%s): %v", req.Kind, req.URL, err)
		return nil, false
	}

	return &Response{
		Status:      stored.Status,
		ContentType: stored.ContentType,
		Body:        stored.Body,
		FromCache:   true,
	}, true
}

// mirror writes a successful network response into the request's partition.
// Only GETs with non-error statuses are cached; a later response for the same
// key overwrites the earlier one.
func (r *Router) mirror(req ClassifiedRequest, resp *Response) {
	if req.Method != "" && req.Method != "GET" {
		return
	}
	if resp.Status >= 400 {
		return
	}

	partition, err := r.partition(req.Kind)
	if err != nil {
		r.logger.Printf("open partition for %s: %v", req.Kind, err)
		return
	}

	payload, err := json.Marshal(storedResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Body:        resp.Body,
	})
	if err != nil {
		r.logger.Printf("encode cache entry (url=%s): %v", req.URL, err)
		return
	}

	if err := partition.Put(cacheKey(req), payload); err != nil {
		r.logger.Printf("cache put (kind=%s, url=%s): %v", req.Kind, req.URL, err)
	}
}

func (r *Router) partition(kind Kind) (*cachestore.Partition, error) {
	name := cachestore.PartitionName(r.versionPrefix, kind.Class())
	partition, err := r.cache.Open(name)
	if err != nil {
		return nil, fmt.Errorf("router: partition %s: %w", name, err)
	}
	return partition, nil
}

func requestPath(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return parsed.Path
}
