package rest

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
)

// Request describes one REST call. It is a value: every Option applied
// through With works on a deep copy, so a request can be reissued as is.
type Request struct {
	Method string
	// Path is relative to the API root, e.g. "projects/3/trackers".
	Path string

	query  url.Values
	header http.Header
	body   []byte
}

type Option func(*Request)

func NewRequest(method, path string, opts ...Option) Request {
	r := Request{Method: method, Path: strings.TrimLeft(path, "/")}
	return r.With(opts...)
}

func Get(path string, opts ...Option) Request {
	return NewRequest(http.MethodGet, path, opts...)
}

// With returns a copy of r with opts applied.
func (r Request) With(opts ...Option) Request {
	out := Request{
		Method: r.Method,
		Path:   r.Path,
		query:  url.Values{},
		header: http.Header{},
		body:   bytes.Clone(r.body),
	}
	for k, vs := range r.query {
		out.query[k] = append([]string(nil), vs...)
	}
	for k, vs := range r.header {
		out.header[k] = append([]string(nil), vs...)
	}
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

// Query adds a query parameter, keeping earlier values of the same key.
func Query(key, value string) Option {
	return func(r *Request) { r.query.Add(key, value) }
}

// SetQuery replaces a query parameter.
func SetQuery(key, value string) Option {
	return func(r *Request) { r.query.Set(key, value) }
}

func Header(key, value string) Option {
	return func(r *Request) { r.header.Set(key, value) }
}

func Body(data []byte) Option {
	return func(r *Request) {
		r.body = bytes.Clone(data)
		r.header.Set("Content-Type", "application/json")
	}
}

func (r Request) Query() url.Values {
	out := url.Values{}
	for k, vs := range r.query {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func (r Request) Header() http.Header {
	return r.header.Clone()
}

func (r Request) Body() []byte {
	return bytes.Clone(r.body)
}

// URL joins base and the request path and query.
func (r Request) URL(base string) string {
	u := strings.TrimRight(base, "/") + "/" + r.Path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	return u
}

func (r Request) String() string {
	return r.Method + " " + r.URL("")
}
