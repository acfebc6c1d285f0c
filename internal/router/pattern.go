package router

import (
	"fmt"
	"path"
	"strings"

	"github.com/aukc1970/formwork/internal/apperr"
)

// ParamType constrains the values a placeholder accepts.
type ParamType string

const (
	// TypeAny matches any single non-empty path segment.
	TypeAny ParamType = ""
	// TypeNum matches a segment made of ASCII digits only.
	TypeNum ParamType = "num"
	// TypeAln matches a segment made of ASCII letters and digits only.
	TypeAln ParamType = "aln"
	// TypeAll matches one or more whole segments, slashes included.
	TypeAll ParamType = "all"
)

type segment struct {
	literal string
	name    string
	typ     ParamType
	param   bool
}

func (s segment) accepts(part string) bool {
	if part == "" {
		return false
	}
	switch s.typ {
	case TypeNum:
		for i := 0; i < len(part); i++ {
			if part[i] < '0' || part[i] > '9' {
				return false
			}
		}
	case TypeAln:
		for i := 0; i < len(part); i++ {
			c := part[i]
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
				return false
			}
		}
	case TypeAll:
		for _, p := range strings.Split(part, "/") {
			if p == "" {
				return false
			}
		}
	}
	return true
}

// Pattern is a compiled path template such as "/{page}/page/{paginationPage:num}/".
type Pattern struct {
	raw      string
	segments []segment
	trailing bool
}

// Compile parses a path template. Placeholders take the form {name} or
// {name:type} where type is one of num, aln or all.
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, fmt.Errorf("%w: %q must start with /", apperr.ErrInvalidPattern, pattern)
	}
	p := &Pattern{raw: pattern, trailing: strings.HasSuffix(pattern, "/")}
	seen := make(map[string]struct{})
	for _, part := range splitPath(pattern) {
		if !strings.ContainsAny(part, "{}") {
			p.segments = append(p.segments, segment{literal: part})
			continue
		}
		if part[0] != '{' || part[len(part)-1] != '}' || strings.Count(part, "{") != 1 || strings.Count(part, "}") != 1 {
			return nil, fmt.Errorf("%w: %q has malformed segment %q", apperr.ErrInvalidPattern, pattern, part)
		}
		name, typ, _ := strings.Cut(part[1:len(part)-1], ":")
		if !validName(name) {
			return nil, fmt.Errorf("%w: %q has invalid placeholder name %q", apperr.ErrInvalidPattern, pattern, name)
		}
		switch ParamType(typ) {
		case TypeAny, TypeNum, TypeAln, TypeAll:
		default:
			return nil, fmt.Errorf("%w: %q has unknown type %q", apperr.ErrInvalidPattern, pattern, typ)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %q repeats placeholder %q", apperr.ErrInvalidPattern, pattern, name)
		}
		seen[name] = struct{}{}
		p.segments = append(p.segments, segment{name: name, typ: ParamType(typ), param: true})
	}
	return p, nil
}

// MustCompile is Compile but panics on error.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pattern source.
func (p *Pattern) String() string {
	return p.raw
}

// Match reports whether the request path matches the pattern and returns
// the captured parameters.
func (p *Pattern) Match(requestPath string) (Params, bool) {
	values := make(map[string]string)
	if !matchSegments(p.segments, splitPath(normalize(requestPath)), values) {
		return Params{}, false
	}
	return Params{values: values}, true
}

// matchSegments walks pattern and path segments in lockstep. TypeAll
// placeholders try the longest span first and backtrack.
func matchSegments(pat []segment, parts []string, out map[string]string) bool {
	if len(pat) == 0 {
		return len(parts) == 0
	}
	s := pat[0]
	if s.param && s.typ == TypeAll {
		for n := len(parts); n >= 1; n-- {
			out[s.name] = strings.Join(parts[:n], "/")
			if matchSegments(pat[1:], parts[n:], out) {
				return true
			}
		}
		delete(out, s.name)
		return false
	}
	if len(parts) == 0 {
		return false
	}
	if !s.param {
		return s.literal == parts[0] && matchSegments(pat[1:], parts[1:], out)
	}
	if !s.accepts(parts[0]) {
		return false
	}
	out[s.name] = parts[0]
	if matchSegments(pat[1:], parts[1:], out) {
		return true
	}
	delete(out, s.name)
	return false
}

// Build renders the pattern with the given parameter values.
func (p *Pattern) Build(values map[string]string) (string, error) {
	parts := make([]string, 0, len(p.segments))
	for _, s := range p.segments {
		if !s.param {
			parts = append(parts, s.literal)
			continue
		}
		v, ok := values[s.name]
		if !ok {
			return "", fmt.Errorf("router: build %q: missing parameter %q", p.raw, s.name)
		}
		v = strings.Trim(v, "/")
		if !s.accepts(v) {
			return "", fmt.Errorf("router: build %q: value %q rejected by %q", p.raw, v, s.name)
		}
		parts = append(parts, v)
	}
	if len(parts) == 0 {
		return "/", nil
	}
	out := "/" + strings.Join(parts, "/")
	if p.trailing {
		out += "/"
	}
	return out, nil
}

// normalize returns the canonical form of a request path, eliminating
// . and .. elements and duplicate slashes.
func normalize(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
