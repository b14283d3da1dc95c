package qson

import (
	"cmp"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/wagiedev/qconn/internal/errors"
	"github.com/wagiedev/qconn/internal/promise"
)

var errNoExporter = stderrors.New("value must be passed by reference but no exporter is configured")

// identity distinguishes the shareable values of one encoding pass: maps,
// non-empty slices and pointers.
type identity struct {
	typ reflect.Type
	ptr uintptr
	len int
}

type encoder struct {
	codec *Codec
	memo  map[identity]string
}

func (e *encoder) encode(v any, path string) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case undefined:
		return map[string]any{tagSpecial: specialUndefined}, nil
	case bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr:
		return x, nil
	case float64:
		return encodeFloat(x), nil
	case float32:
		return encodeFloat(float64(x)), nil
	case RegExp:
		return special(typeRegExp, x.String()), nil
	case *regexp.Regexp:
		if x == nil {
			return nil, nil
		}

		return special(typeRegExp, RegExp{Source: x.String()}.String()), nil
	case time.Time:
		return special(typeDate, x.UTC().Format(dateLayout)), nil
	}

	rv := reflect.ValueOf(v)

	id, shareable := identify(rv)
	if shareable {
		if prior, seen := e.memo[id]; seen {
			return map[string]any{tagBackref: prior}, nil
		}

		e.memo[id] = path
	}

	switch x := v.(type) {
	case promise.Invoker:
		return e.export(v, KindObject, path)
	case promise.Func, func(context.Context, ...any) (any, error):
		return e.export(v, KindFunction, path)
	case Marshaler:
		data, err := x.MarshalQSON()
		if err != nil {
			return nil, &errors.EncodingError{Path: path, Err: err}
		}

		return e.substitute(data, path, id, shareable)
	case json.Marshaler:
		data, err := fromJSON(x)
		if err != nil {
			return nil, &errors.EncodingError{Path: path, Err: err}
		}

		return e.substitute(data, path, id, shareable)
	case error:
		return e.encodeError(x, path)
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return e.export(v, KindObject, path)
		}

		if rv.IsNil() {
			return nil, nil
		}

		return e.encodeMap(rv, path)
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}

		return e.encodeList(rv, path)
	case reflect.Array:
		return e.encodeList(rv, path)
	case reflect.Func:
		if rv.IsNil() {
			return nil, nil
		}

		return e.export(v, KindFunction, path)
	case reflect.Pointer, reflect.Chan:
		if rv.IsNil() {
			return nil, nil
		}

		return e.export(v, KindObject, path)
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return encodeFloat(rv.Float()), nil
	default:
		return e.export(v, KindObject, path)
	}
}

func (e *encoder) encodeMap(rv reflect.Value, path string) (any, error) {
	type field struct {
		key   string
		value reflect.Value
	}

	fields := make([]field, 0, rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		fields = append(fields, field{key: EscapeKey(iter.Key().String()), value: iter.Value()})
	}

	// Decoding walks keys in the same order, so memo paths line up.
	slices.SortFunc(fields, func(a, b field) int {
		return cmp.Compare(a.key, b.key)
	})

	result := make(map[string]any, len(fields))

	for _, f := range fields {
		encoded, err := e.encode(f.value.Interface(), path+"/"+f.key)
		if err != nil {
			return nil, err
		}

		result[f.key] = encoded
	}

	return result, nil
}

func (e *encoder) encodeList(rv reflect.Value, path string) (any, error) {
	result := make([]any, rv.Len())

	for i := range rv.Len() {
		encoded, err := e.encode(rv.Index(i).Interface(), path+"/"+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}

		result[i] = encoded
	}

	return result, nil
}

// substitute encodes the data form of a marshaler in its place. A scalar
// result is not materialized as a shared value on decode, so the identity is
// forgotten and a repeat visit encodes it again.
func (e *encoder) substitute(data any, path string, id identity, shareable bool) (any, error) {
	result, err := e.encode(data, path)
	if err != nil {
		return nil, err
	}

	if shareable && !composite(result) {
		delete(e.memo, id)
	}

	return result, nil
}

func fromJSON(m json.Marshaler) (any, error) {
	data, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}

	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}

	return tree, nil
}

// composite reports whether the decoder records v under its path: arrays,
// plain objects and references.
func composite(v any) bool {
	switch x := v.(type) {
	case []any:
		return true
	case map[string]any:
		_, isSpecial := x[tagSpecial]
		_, isBackref := x[tagBackref]

		return !isSpecial && !isBackref
	default:
		return false
	}
}

// encodeError renders an error as an error-like object: message, stack and
// the exported fields of the error struct, keyed by their json names. A
// RemoteError forwards the fields of the reason it was built from.
func (e *encoder) encodeError(err error, path string) (any, error) {
	stack := fmt.Sprintf("%+v", err)
	fields := make(map[string]any)

	if remote, ok := stderrors.AsType[*errors.RemoteError](err); ok {
		if remote.Stack != "" {
			stack = remote.Stack
		}

		if reason, ok := remote.Reason.(map[string]any); ok {
			for k, v := range reason {
				fields[k] = v
			}
		}
	} else {
		errorFields(err, fields)
	}

	fields["message"] = err.Error()
	fields["stack"] = stack

	return e.encodeMap(reflect.ValueOf(fields), path)
}

// errorFields copies the exported struct fields of err into fields.
func errorFields(err error, fields map[string]any) {
	rv := reflect.ValueOf(err)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return
		}

		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Struct {
		return
	}

	typ := rv.Type()

	for i := range typ.NumField() {
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}

		name := sf.Name

		if tag, ok := sf.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}

			if tagName != "" {
				name = tagName
			}
		}

		fields[name] = rv.Field(i).Interface()
	}
}

func (e *encoder) export(v any, kind string, path string) (any, error) {
	if e.codec.exporter == nil {
		return nil, &errors.EncodingError{Path: path, Err: errNoExporter}
	}

	id, err := e.codec.exporter.Export(v, kind)
	if err != nil {
		return nil, &errors.EncodingError{Path: path, Err: err}
	}

	return map[string]any{tagRef: id, fieldType: kind}, nil
}

func identify(rv reflect.Value) (identity, bool) {
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer:
		if rv.IsNil() {
			return identity{}, false
		}

		return identity{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Slice:
		if rv.Len() == 0 {
			return identity{}, false
		}

		return identity{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}, true
	default:
		return identity{}, false
	}
}

func encodeFloat(f float64) any {
	switch {
	case math.IsInf(f, 1):
		return map[string]any{tagSpecial: specialPosInfinity}
	case math.IsInf(f, -1):
		return map[string]any{tagSpecial: specialNegInfinity}
	case math.IsNaN(f):
		return map[string]any{tagSpecial: specialNaN}
	default:
		return f
	}
}

func special(typ, value string) map[string]any {
	return map[string]any{tagSpecial: map[string]any{fieldType: typ, fieldValue: value}}
}
