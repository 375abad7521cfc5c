// Package router classifies outgoing requests and applies per-class caching
// strategies: cache-first for static assets and images, network-first with
// cache fallback for API calls and page navigations.
package router

import (
	"net/url"
	"path"
	"strings"

	"github.com/fitfriendsclub/khyrie-offline/cachestore"
)

// Kind is the request category produced by Classify.
type Kind string

const (
	KindStatic  Kind = "static"
	KindAPI     Kind = "api"
	KindImage   Kind = "image"
	KindDynamic Kind = "dynamic"
)

// Class maps a request kind to its cache partition content class.
func (k Kind) Class() cachestore.ContentClass {
	switch k {
	case KindStatic:
		return cachestore.ClassStatic
	case KindAPI:
		return cachestore.ClassAPI
	case KindImage:
		return cachestore.ClassImages
	default:
		return cachestore.ClassDynamic
	}
}

// ClassifiedRequest tags a request with the kind its URL classified into.
type ClassifiedRequest struct {
	Kind   Kind
	URL    string
	Method string
}

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {},
	".webp": {}, ".ico": {}, ".bmp": {}, ".avif": {},
}

var staticExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".mjs": {}, ".json": {}, ".map": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".webmanifest": {},
}

var apiPrefixes = []string{"/api/", "/v1/"}

// Classify maps a request URL to exactly one Kind. It is total: URLs that do
// not parse or match nothing fall through to KindDynamic.
func Classify(rawURL string) Kind {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return KindDynamic
	}

	requestPath := parsed.Path
	for _, prefix := range apiPrefixes {
		if strings.HasPrefix(requestPath, prefix) {
			return KindAPI
		}
	}

	ext := strings.ToLower(path.Ext(requestPath))
	if _, ok := imageExtensions[ext]; ok {
		return KindImage
	}
	if _, ok := staticExtensions[ext]; ok {
		return KindStatic
	}
	if strings.HasPrefix(requestPath, "/static/") || strings.HasPrefix(requestPath, "/assets/") {
		return KindStatic
	}

	return KindDynamic
}

// NewRequest classifies rawURL and packages it with the method.
func NewRequest(method, rawURL string) ClassifiedRequest {
	return ClassifiedRequest{
		Kind:   Classify(rawURL),
		URL:    rawURL,
		Method: method,
	}
}

// cacheKey derives the partition lookup key for a request. Fragments are
// stripped; the query string participates so parameterised API reads cache
// independently.
func cacheKey(req ClassifiedRequest) string {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return req.URL
	}
	parsed.Fragment = ""
	return parsed.String()
}
