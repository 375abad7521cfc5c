package router

import (
	"encoding/json"
	"net/http"
)

// placeholderSVG is served for image requests that miss the cache while the
// network is down.
const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 120 120"><rect width="120" height="120" fill="#e2e8f0"/><text x="60" y="66" font-family="sans-serif" font-size="14" fill="#64748b" text-anchor="middle">offline</text></svg>`

// offlinePageHTML is the minimal navigation fallback shown when a dynamic page
// misses the cache offline.
const offlinePageHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Khyrie - Offline</title></head>
<body>
<h1>You're offline</h1>
<p>Your workouts are saved locally and will sync when you're back online.</p>
</body>
</html>`

// apiStatusOverrides lists API paths that answer offline fallbacks with 200
// instead of 503: their consumers render an empty cached collection rather
// than an error state.
var apiStatusOverrides = map[string]int{
	"/api/workouts":  http.StatusOK,
	"/api/exercises": http.StatusOK,
	"/api/progress":  http.StatusOK,
}

type apiOfflineBody struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Workouts []any  `json:"workouts"`
	Cached   bool   `json:"cached"`
}

func imageFallback() *Response {
	return &Response{
		Status:      http.StatusOK,
		ContentType: "image/svg+xml",
		Body:        []byte(placeholderSVG),
	}
}

func staticFallback() *Response {
	return &Response{
		Status:      http.StatusServiceUnavailable,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte("asset unavailable offline"),
	}
}

func dynamicFallback() *Response {
	return &Response{
		Status:      http.StatusServiceUnavailable,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(offlinePageHTML),
	}
}

func apiFallback(requestPath string) *Response {
	status := http.StatusServiceUnavailable
	if override, ok := apiStatusOverrides[requestPath]; ok {
		status = override
	}

	body, err := json.Marshal(apiOfflineBody{
		Error:    "offline",
		Message:  "no network connection and no cached data",
		Workouts: []any{},
		Cached:   false,
	})
	if err != nil {
		body = []byte(`{"error":"offline","message":"no network connection and no cached data"}`)
	}

	return &Response{
		Status:      status,
		ContentType: "application/json",
		Body:        body,
	}
}
