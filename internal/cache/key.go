package cache

import (
	"net/url"
	"strings"
)

// Key builds the cache key for a page route and its route parameters. The
// "page" parameter is implied by the route and left out.
func Key(route string, params map[string]string) string {
	route = "/" + strings.Trim(route, "/") + "/"
	if route == "//" {
		route = "/"
	}
	q := url.Values{}
	for k, v := range params {
		if k == "page" {
			continue
		}
		q.Set(k, v)
	}
	if len(q) == 0 {
		return route
	}
	return route + "?" + q.Encode()
}

// RouteOf returns the route part of a key built by Key.
func RouteOf(key string) string {
	if i := strings.IndexByte(key, '?'); i >= 0 {
		return key[:i]
	}
	return key
}
