package realtime

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nswire/nswire"
)

var paramNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// pathPattern is a compiled path template. Literal segments are escaped,
// parameter segments become capturing groups.
type pathPattern struct {
	source string
	re     *regexp.Regexp
	params []string
}

// hasParams reports whether any segment of path is a `:param` placeholder.
func hasParams(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, ":") {
			return true
		}
	}
	return false
}

// validateLiteralPath rejects paths that cannot serve as concrete namespace
// keys: they must live under the API prefix, have no empty segments, and
// must not contain ':' anywhere. The ':' restriction keeps the translation
// between paths and transport channel names unambiguous.
func validateLiteralPath(path string) error {
	if !strings.HasPrefix(path, nswire.APIPrefix+"/") {
		return fmt.Errorf("%s: %q must start with %s", nswire.ErrInvalidNamespacePath, path, nswire.APIPrefix)
	}
	if strings.Contains(path, ":") {
		return fmt.Errorf("%s: %q contains reserved character ':'", nswire.ErrInvalidNamespacePath, path)
	}
	for _, seg := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if seg == "" {
			return fmt.Errorf("%s: %q has an empty segment", nswire.ErrInvalidNamespacePath, path)
		}
	}
	return nil
}

// compilePattern turns a template like /api/1/ws/room/:id into a matcher.
func compilePattern(path string) (*pathPattern, error) {
	if !strings.HasPrefix(path, nswire.APIPrefix+"/") {
		return nil, fmt.Errorf("%s: %q must start with %s", nswire.ErrInvalidNamespacePath, path, nswire.APIPrefix)
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	var (
		b      strings.Builder
		params []string
	)
	b.WriteString("^")
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%s: %q has an empty segment", nswire.ErrInvalidNamespacePath, path)
		}
		b.WriteString("/")
		if strings.HasPrefix(seg, ":") {
			name := seg[1:]
			if !paramNameRe.MatchString(name) {
				return nil, fmt.Errorf("%s: bad parameter name %q", nswire.ErrInvalidNamespacePath, seg)
			}
			params = append(params, name)
			b.WriteString("([^/]+)")
			continue
		}
		if strings.Contains(seg, ":") {
			return nil, fmt.Errorf("%s: literal segment %q contains ':'", nswire.ErrInvalidNamespacePath, seg)
		}
		b.WriteString(regexp.QuoteMeta(seg))
	}
	b.WriteString("$")

	if len(params) == 0 {
		return nil, errors.New(nswire.ErrInvalidNamespacePath + ": pattern has no parameters")
	}

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", nswire.ErrInvalidNamespacePath, err)
	}
	return &pathPattern{source: path, re: re, params: params}, nil
}

// match extracts the parameter map for a concrete path, or reports no match.
func (p *pathPattern) match(path string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	params := make(map[string]string, len(p.params))
	for i, name := range p.params {
		params[name] = m[i+1]
	}
	return params, true
}
