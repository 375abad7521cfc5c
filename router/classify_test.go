package router

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		url  string
		want Kind
	}{
		{"https://khyrie.app/api/workouts", KindAPI},
		{"https://khyrie.app/v1/progress?user=7", KindAPI},
		{"https://khyrie.app/icons/logo.png", KindImage},
		{"https://khyrie.app/media/hero.webp", KindImage},
		{"https://khyrie.app/app.css", KindStatic},
		{"https://khyrie.app/bundle.js", KindStatic},
		{"https://khyrie.app/static/vendor/chart", KindStatic},
		{"https://khyrie.app/assets/fonts/inter.woff2", KindStatic},
		{"https://khyrie.app/", KindDynamic},
		{"https://khyrie.app/dashboard", KindDynamic},
		{"https://khyrie.app/family/groups", KindDynamic},
		{"", KindDynamic},
		{"://not-a-url", KindDynamic},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, Classify(tc.url), "url=%q", tc.url)
	}
}

func TestClassifyIsTotal(t *testing.T) {
	// Every classification lands in exactly one of the four kinds.
	known := map[Kind]struct{}{
		KindStatic: {}, KindAPI: {}, KindImage: {}, KindDynamic: {},
	}
	for _, url := range []string{
		"https://khyrie.app/api/x", "https://khyrie.app/a.png", "weird", "/x/y.z",
	} {
		_, ok := known[Classify(url)]
		require.True(t, ok, "url=%q", url)
	}
}

func TestCacheKeyStripsFragment(t *testing.T) {
	a := NewRequest("GET", "https://khyrie.app/dashboard#feed")
	b := NewRequest("GET", "https://khyrie.app/dashboard")
	require.Equal(t, cacheKey(b), cacheKey(a))
}

func TestCacheKeyKeepsQuery(t *testing.T) {
	a := NewRequest("GET", "https://khyrie.app/api/workouts?user=1")
	b := NewRequest("GET", "https://khyrie.app/api/workouts?user=2")
	require.NotEqual(t, cacheKey(b), cacheKey(a))
}
