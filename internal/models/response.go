// Package models defines the transport types shared by the engine, cache and APIs.
package models

import (
	"net/http"
	"time"
)

// Response is a rendered page as replayed by the response cache.
type Response struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"-"`
}

// Clone returns a deep copy so cached responses are never mutated by callers.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   body,
	}
}

// PageSummary is a lightweight representation returned by list operations.
type PageSummary struct {
	Route     string    `json:"route"`
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Template  string    `json:"template"`
	Published bool      `json:"published"`
	Routable  bool      `json:"routable"`
	Listing   bool      `json:"listing"`
	Level     int       `json:"level"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResolveOutcome describes the result of resolving a request path without rendering it.
type ResolveOutcome struct {
	Path     string            `json:"path"`
	Kind     string            `json:"kind"`
	Route    string            `json:"route,omitempty"`
	Location string            `json:"location,omitempty"`
	File     string            `json:"file,omitempty"`
	MimeType string            `json:"mime_type,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// FileSummary describes a file attached to a page directory.
type FileSummary struct {
	Name     string    `json:"name"`
	MimeType string    `json:"mime_type"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// PageDetail is the full page representation returned by the admin surfaces.
type PageDetail struct {
	PageSummary
	Canonical string        `json:"canonical,omitempty"`
	Tags      []string      `json:"tags,omitempty"`
	Body      string        `json:"body"`
	Files     []FileSummary `json:"files"`
}
