// Package query reads and edits the query string of a request URL one
// parameter at a time. Edits never touch the scheme, host, path, fragment or
// any parameter other than the one addressed.
package query

import (
	"net/url"
	"strings"

	"github.com/sadopc/reqdeck/internal/errdef"
)

// Param is a single query-string entry. HasValue is false for key-only
// entries such as "?debug".
type Param struct {
	Key      string
	Value    string
	HasValue bool
}

// parts is a URL split around its query string. segments holds the raw
// "&"-separated pieces, including empty ones, so untouched pieces can be
// written back byte for byte.
type parts struct {
	base     string
	segments []string
	fragment string
}

func split(rawURL string) parts {
	s := rawURL
	var p parts
	if i := strings.IndexByte(s, '#'); i >= 0 {
		p.fragment = s[i:]
		s = s[:i]
	}
	i := strings.IndexByte(s, '?')
	if i < 0 {
		p.base = s
		return p
	}
	p.base = s[:i]
	if q := s[i+1:]; q != "" {
		p.segments = strings.Split(q, "&")
	}
	return p
}

func (p parts) String() string {
	var b strings.Builder
	b.WriteString(p.base)
	if q := strings.Join(p.segments, "&"); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	b.WriteString(p.fragment)
	return b.String()
}

// positions maps parameter indexes to segment indexes, skipping empty
// segments ("a=1&&b=2" has two parameters).
func (p parts) positions() []int {
	pos := make([]int, 0, len(p.segments))
	for i, seg := range p.segments {
		if seg != "" {
			pos = append(pos, i)
		}
	}
	return pos
}

// Parse returns the query parameters of rawURL in order. Duplicate keys are
// kept as separate entries. A URL without a query string yields an empty
// slice.
func Parse(rawURL string) []Param {
	p := split(rawURL)
	params := make([]Param, 0, len(p.segments))
	for _, seg := range p.segments {
		if seg == "" {
			continue
		}
		params = append(params, decode(seg))
	}
	return params
}

// SetParameter replaces the key and/or value of the parameter at index.
// A nil key or value leaves that side unchanged.
func SetParameter(rawURL string, index int, key, value *string) (string, error) {
	if err := ValidateURL(rawURL); err != nil {
		return "", err
	}
	p := split(rawURL)
	pos := p.positions()
	if index < 0 || index >= len(pos) {
		return "", errdef.New(errdef.CodeValidation, "parameter index %d out of range (have %d)", index, len(pos))
	}

	seg := pos[index]
	param := decode(p.segments[seg])
	if key != nil {
		param.Key = *key
	}
	if value != nil {
		param.Value = *value
		param.HasValue = true
	}
	p.segments[seg] = encode(param)
	return p.String(), nil
}

// SetKey renames the parameter at index.
func SetKey(rawURL string, index int, key string) (string, error) {
	return SetParameter(rawURL, index, &key, nil)
}

// SetValue changes the value of the parameter at index.
func SetValue(rawURL string, index int, value string) (string, error) {
	return SetParameter(rawURL, index, nil, &value)
}

// AppendParameter adds key=value after the last parameter.
func AppendParameter(rawURL, key, value string) (string, error) {
	if err := ValidateURL(rawURL); err != nil {
		return "", err
	}
	p := split(rawURL)
	p.segments = append(p.segments, encode(Param{Key: key, Value: value, HasValue: true}))
	return p.String(), nil
}

// RemoveParameter drops the parameter at index. The "?" goes away with the
// last parameter, along with any empty segments left around it.
func RemoveParameter(rawURL string, index int) (string, error) {
	if err := ValidateURL(rawURL); err != nil {
		return "", err
	}
	p := split(rawURL)
	pos := p.positions()
	if index < 0 || index >= len(pos) {
		return "", errdef.New(errdef.CodeValidation, "parameter index %d out of range (have %d)", index, len(pos))
	}
	seg := pos[index]
	p.segments = append(p.segments[:seg], p.segments[seg+1:]...)
	if len(pos) == 1 {
		p.segments = nil
	}
	return p.String(), nil
}

// ValidateURL requires an absolute URL with a scheme and a host.
func ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return errdef.New(errdef.CodeValidation, "url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return errdef.Wrap(errdef.CodeValidation, err, "invalid url")
	}
	if u.Scheme == "" || u.Host == "" {
		return errdef.New(errdef.CodeValidation, "url %q must include scheme and host", rawURL)
	}
	return nil
}

func decode(seg string) Param {
	k, v, ok := strings.Cut(seg, "=")
	return Param{Key: unescape(k), Value: unescape(v), HasValue: ok}
}

func encode(param Param) string {
	k := url.QueryEscape(param.Key)
	if !param.HasValue {
		if k == "" {
			// an empty segment would be skipped and shift later indexes
			return "="
		}
		return k
	}
	return k + "=" + url.QueryEscape(param.Value)
}

// unescape falls back to the raw text for malformed escapes, the way
// browsers read "?q=100%" without complaint.
func unescape(s string) string {
	u, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return u
}
