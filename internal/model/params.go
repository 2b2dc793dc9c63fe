package model

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Params maps hyperparameter names to values. Values come from Go literals,
// YAML or JSON, so numbers may arrive as int, int64 or float64.
type Params map[string]any

// String renders the params as sorted key=value pairs.
func (p Params) String() string {
	if len(p) == 0 {
		return "defaults"
	}
	keys := p.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, " ")
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// StringMap renders every value with %v, the form tracking backends accept.
func (p Params) StringMap() map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// paramReader reads typed values out of Params, remembering the first
// conversion error and which keys were consumed.
type paramReader struct {
	p    Params
	used map[string]bool
	err  error
}

func readParams(p Params) *paramReader {
	return &paramReader{p: p, used: make(map[string]bool)}
}

func (r *paramReader) fail(key string, v any, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("parameter %s: cannot use %v (%T) as %s", key, v, v, want)
	}
}

func (r *paramReader) lookup(key string) (any, bool) {
	r.used[key] = true
	v, ok := r.p[key]
	return v, ok
}

func (r *paramReader) Int(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	r.fail(key, v, "int")
	return def
}

func (r *paramReader) Float(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	r.fail(key, v, "float")
	return def
}

func (r *paramReader) String(key string, def string) string {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		if s == math.Trunc(s) {
			return strconv.Itoa(int(s))
		}
	}
	r.fail(key, v, "string")
	return def
}

func (r *paramReader) Bool(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	r.fail(key, v, "bool")
	return def
}

// Err returns the first conversion error, or an error naming any parameter
// the family does not accept.
func (r *paramReader) Err() error {
	if r.err != nil {
		return r.err
	}
	var unknown []string
	for k := range r.p {
		if !r.used[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown parameters: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// resolveMaxFeatures turns a max_features rule into a column count.
// Accepted rules: "all" (or ""), "sqrt", "log2" or a positive integer.
func resolveMaxFeatures(rule string, cols int) (int, error) {
	var k int
	switch rule {
	case "", "all":
		return cols, nil
	case "sqrt":
		k = int(math.Sqrt(float64(cols)))
	case "log2":
		k = int(math.Log2(float64(cols)))
	default:
		n, err := strconv.Atoi(rule)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid max_features %q", rule)
		}
		k = n
	}
	if k < 1 {
		k = 1
	}
	if k > cols {
		k = cols
	}
	return k, nil
}
