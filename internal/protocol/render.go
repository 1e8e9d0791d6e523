package protocol

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// maxRenderDepth caps recursion into nested containers. Anything deeper is
// elided rather than risking an unbounded walk.
const maxRenderDepth = 8

// Render produces a stable, human-readable rendering of v suitable for a
// source comment. Strings are quoted, map keys are sorted, pointers are
// followed at most once, so rendering never panics or loops on cyclic values.
func Render(v any) string {
	var b strings.Builder
	render(&b, reflect.ValueOf(v), map[uintptr]bool{}, 0)
	return b.String()
}

func render(b *strings.Builder, v reflect.Value, seen map[uintptr]bool, depth int) {
	if depth > maxRenderDepth {
		b.WriteString("...")
		return
	}
	if !v.IsValid() {
		b.WriteString("nil")
		return
	}

	switch v.Kind() {
	case reflect.String:
		b.WriteString(strconv.Quote(v.String()))

	case reflect.Bool:
		b.WriteString(strconv.FormatBool(v.Bool()))

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(v.Int(), 10))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteString(strconv.FormatUint(v.Uint(), 10))

	case reflect.Float32, reflect.Float64:
		bits := 64
		if v.Kind() == reflect.Float32 {
			bits = 32
		}
		b.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, bits))

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice {
			if v.IsNil() {
				b.WriteString("nil")
				return
			}
			if !mark(v.Pointer(), seen) {
				b.WriteString("[...]")
				return
			}
			defer unmark(v.Pointer(), seen)
		}
		b.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			render(b, v.Index(i), seen, depth+1)
		}
		b.WriteByte(']')

	case reflect.Map:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		if !mark(v.Pointer(), seen) {
			b.WriteString("map[...]")
			return
		}
		defer unmark(v.Pointer(), seen)
		type pair struct{ key, val string }
		pairs := make([]pair, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			var kb, vb strings.Builder
			render(&kb, iter.Key(), seen, depth+1)
			render(&vb, iter.Value(), seen, depth+1)
			pairs = append(pairs, pair{kb.String(), vb.String()})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
		b.WriteString("map[")
		for i, p := range pairs {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.key)
			b.WriteString(": ")
			b.WriteString(p.val)
		}
		b.WriteByte(']')

	case reflect.Pointer:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		if !mark(v.Pointer(), seen) {
			b.WriteString("&...")
			return
		}
		defer unmark(v.Pointer(), seen)
		b.WriteByte('&')
		render(b, v.Elem(), seen, depth+1)

	case reflect.Interface:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		render(b, v.Elem(), seen, depth)

	case reflect.Struct:
		t := v.Type()
		b.WriteString(t.Name())
		b.WriteByte('{')
		first := true
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(f.Name)
			b.WriteString(": ")
			render(b, v.Field(i), seen, depth+1)
		}
		b.WriteByte('}')

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		b.WriteString(v.Type().String())

	default:
		fmt.Fprintf(b, "%v", v)
	}
}

func mark(ptr uintptr, seen map[uintptr]bool) bool {
	if seen[ptr] {
		return false
	}
	seen[ptr] = true
	return true
}

func unmark(ptr uintptr, seen map[uintptr]bool) {
	delete(seen, ptr)
}
