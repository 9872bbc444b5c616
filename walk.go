package sanitizex

import (
	"cmp"
	"encoding/json"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// walk redacts node depth-first and returns the value that should take its
// place in the parent. Containers are rewritten in place; only a truncated
// slice, a copied array or a masked scalar comes back as a different value.
//
// field is the key the node sits under. Sequence elements have no key of
// their own, so they are field-matched against it; this covers multi-valued
// entries such as http.Header and url.Values.
func (r *Redactor) walk(node any, depth int, field string) (any, error) {
	switch n := node.(type) {
	case *Map:
		if n == nil {
			return node, nil
		}
		r.truncated(depth, n.Truncate(MaxItems))
		for _, k := range n.keys {
			v, err := r.child(n.values[k], k, depth)
			if err != nil {
				return node, err
			}
			n.values[k] = v
		}
		return n, nil

	case map[string]any:
		r.truncated(depth, truncateMap(n))
		for k, v := range n {
			out, err := r.child(v, k, depth)
			if err != nil {
				return node, err
			}
			n[k] = out
		}
		return n, nil

	case map[string]string:
		r.truncated(depth, truncateMap(n))
		for k, v := range n {
			n[k] = r.sanitize(v, k).(string)
		}
		return n, nil

	case map[any]any:
		keys := make([]any, 0, len(n))
		names := make(map[any]string, len(n))
		for k := range n {
			name, err := keyName(k)
			if err != nil {
				return node, err
			}
			keys = append(keys, k)
			names[k] = name
		}
		if len(keys) > MaxItems {
			slices.SortFunc(keys, func(a, b any) int {
				return compareKeys(names[a], names[b])
			})
			for _, k := range keys[MaxItems:] {
				delete(n, k)
			}
			r.truncated(depth, len(keys)-MaxItems)
			keys = keys[:MaxItems]
		}
		for _, k := range keys {
			out, err := r.child(n[k], k, depth)
			if err != nil {
				return node, err
			}
			n[k] = out
		}
		return n, nil

	case []any:
		if len(n) > MaxItems {
			r.truncated(depth, len(n)-MaxItems)
			n = n[:MaxItems:MaxItems]
		}
		for i, v := range n {
			out, err := r.child(v, elemKey(i, field), depth)
			if err != nil {
				return node, err
			}
			n[i] = out
		}
		return n, nil

	case []string:
		if len(n) > MaxItems {
			r.truncated(depth, len(n)-MaxItems)
			n = n[:MaxItems:MaxItems]
		}
		for i, v := range n {
			n[i] = r.sanitize(v, elemKey(i, field)).(string)
		}
		return n, nil
	}

	if isContainer(node) {
		return r.walkValue(reflect.ValueOf(node), depth, field)
	}

	// Bare scalar: only the value rule can apply.
	return r.sanitize(node, nil), nil
}

// walkValue handles maps, slices and arrays of any other type.
// A result that does not fit the element type is stored as the element's
// zero value, so a masked int becomes 0.
func (r *Redactor) walkValue(rv reflect.Value, depth int, field string) (any, error) {
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return rv.Interface(), nil
		}
		type entry struct {
			key  reflect.Value
			name string
		}
		entries := make([]entry, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			name, err := keyName(k.Interface())
			if err != nil {
				return rv.Interface(), err
			}
			entries = append(entries, entry{key: k, name: name})
		}
		if len(entries) > MaxItems {
			slices.SortFunc(entries, func(a, b entry) int {
				return compareKeys(a.name, b.name)
			})
			for _, e := range entries[MaxItems:] {
				rv.SetMapIndex(e.key, reflect.Value{})
			}
			r.truncated(depth, len(entries)-MaxItems)
			entries = entries[:MaxItems]
		}
		elem := rv.Type().Elem()
		for _, e := range entries {
			var key any = e.key.Interface()
			if e.key.Kind() == reflect.String {
				key = e.name
			}
			out, err := r.child(rv.MapIndex(e.key).Interface(), key, depth)
			if err != nil {
				return rv.Interface(), err
			}
			rv.SetMapIndex(e.key, storable(out, elem))
		}
		return rv.Interface(), nil

	case reflect.Slice:
		if rv.IsNil() {
			return rv.Interface(), nil
		}
		if rv.Len() > MaxItems {
			r.truncated(depth, rv.Len()-MaxItems)
			rv = rv.Slice3(0, MaxItems, MaxItems)
		}
		return r.walkElems(rv, rv.Len(), depth, field)

	case reflect.Array:
		// Arrays arrive by value; redact a copy and hand it back.
		cp := reflect.New(rv.Type()).Elem()
		cp.Set(rv)
		n := cp.Len()
		if n > MaxItems {
			for i := MaxItems; i < n; i++ {
				cp.Index(i).SetZero()
			}
			r.truncated(depth, n-MaxItems)
			n = MaxItems
		}
		return r.walkElems(cp, n, depth, field)
	}
	return rv.Interface(), nil
}

func (r *Redactor) walkElems(rv reflect.Value, n, depth int, field string) (any, error) {
	elem := rv.Type().Elem()
	for i := 0; i < n; i++ {
		out, err := r.child(rv.Index(i).Interface(), elemKey(i, field), depth)
		if err != nil {
			return rv.Interface(), err
		}
		rv.Index(i).Set(storable(out, elem))
	}
	return rv.Interface(), nil
}

// child redacts a single entry of a container.
func (r *Redactor) child(v any, key any, depth int) (any, error) {
	if isContainer(v) {
		field, _ := key.(string)
		return r.walk(v, depth+1, field)
	}
	return r.sanitize(v, key), nil
}

// elemKey is the key a sequence element is sanitized under.
func elemKey(i int, field string) any {
	if field != "" {
		return field
	}
	return i
}

// truncateMap keeps the first MaxItems keys of m in key order and returns
// how many were dropped.
func truncateMap[V any](m map[string]V) int {
	if len(m) <= MaxItems {
		return 0
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	for _, k := range keys[MaxItems:] {
		delete(m, k)
	}
	return len(keys) - MaxItems
}

// storable converts v for storage in a container with element type t.
func storable(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv
	}
	if rv.Kind() == reflect.String && t.Kind() == reflect.String {
		return rv.Convert(t)
	}
	return reflect.Zero(t)
}

// sanitize applies the value rule and then the key rule to a leaf.
// The key rule runs even when the value was already masked.
func (r *Redactor) sanitize(item any, key any) any {
	if isEmpty(item) {
		return item
	}
	if s, ok := item.(string); ok && r.valueRe.MatchString(s) {
		item = Mask
	}
	name, ok := key.(string)
	if !ok || name == "" {
		return item
	}
	if r.fieldRe.MatchString(name) {
		item = Mask
	}
	return item
}

// sanitizeHTTP masks the session cookie at request.cookies.<name>.
func (r *Redactor) sanitizeHTTP(payload any) {
	if r.sessionCookie == "" {
		return
	}
	request, ok := lookup(payload, "request")
	if !ok || isEmpty(request) {
		return
	}
	cookies, ok := lookup(request, "cookies")
	if !ok || isEmpty(cookies) {
		return
	}
	if v, ok := lookup(cookies, r.sessionCookie); ok && !isEmpty(v) {
		assign(cookies, r.sessionCookie, Mask)
	}
}

func (r *Redactor) truncated(depth, dropped int) {
	if dropped == 0 {
		return
	}
	r.logger.Debug("container truncated",
		zap.String("severity", severityDebug),
		zap.Int("depth", depth),
		zap.Int("dropped", dropped),
		zap.Int("max_items", MaxItems),
	)
}

// isContainer reports whether v is walked rather than sanitized as a leaf.
// Byte slices are leaves.
func isContainer(v any) bool {
	switch v.(type) {
	case *Map, map[string]any, map[string]string, map[any]any, []any, []string:
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		return true
	case reflect.Slice, reflect.Array:
		return rv.Type().Elem().Kind() != reflect.Uint8
	}
	return false
}

// isEmpty reports whether v is nil, "", false, a numeric zero or a nil
// reference. Such values are never masked.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case bool:
		return !t
	case json.Number:
		f, err := t.Float64()
		return t == "" || (err == nil && f == 0)
	case *Map:
		return t.Len() == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String, reflect.Bool:
		return rv.IsZero()
	case reflect.Map, reflect.Slice:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// keyName returns the ordering name of a map key. Only strings and
// integers are valid payload keys.
func keyName(k any) (string, error) {
	if s, ok := k.(string); ok {
		return s, nil
	}
	rv := reflect.ValueOf(k)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	}
	return "", errors.Wrapf(ErrInvalidKey, "key %v of type %T", k, k)
}

// compareKeys orders integer-like keys numerically ahead of all other keys,
// which sort lexically.
func compareKeys(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(ai, bi)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// lookup reads key from any supported map type.
func lookup(node any, key string) (any, bool) {
	switch n := node.(type) {
	case *Map:
		return n.Get(key)
	case map[string]any:
		v, ok := n[key]
		return v, ok
	case map[string]string:
		v, ok := n[key]
		return v, ok
	case map[any]any:
		v, ok := n[key]
		return v, ok
	}
	rv := reflect.ValueOf(node)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}

// assign writes a string into any supported map type.
func assign(node any, key string, value string) {
	switch n := node.(type) {
	case *Map:
		n.Set(key, value)
	case map[string]any:
		n[key] = value
	case map[string]string:
		n[key] = value
	case map[any]any:
		n[key] = value
	default:
		rv := reflect.ValueOf(node)
		if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String && !rv.IsNil() {
			k := reflect.ValueOf(key).Convert(rv.Type().Key())
			rv.SetMapIndex(k, storable(value, rv.Type().Elem()))
		}
	}
}
