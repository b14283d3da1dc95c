package qson

import (
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/wagiedev/qconn/internal/errors"
	"github.com/wagiedev/qconn/internal/promise"
)

type decoder struct {
	codec *Codec
	memo  map[string]any
}

func (d *decoder) decode(node any, path string) any {
	switch x := node.(type) {
	case map[string]any:
		return d.decodeObject(x, path)
	case []any:
		result := make([]any, len(x))
		d.memo[path] = result

		for i, child := range x {
			result[i] = d.decode(child, path+"/"+strconv.Itoa(i))
		}

		return result
	default:
		return node
	}
}

func (d *decoder) decodeObject(obj map[string]any, path string) any {
	if target, ok := obj[tagBackref]; ok {
		ref, _ := target.(string)

		value, seen := d.memo[ref]
		if !seen {
			return promise.Rejected(&errors.DecodeError{Tag: tagBackref + ref})
		}

		return value
	}

	if tag, ok := obj[tagSpecial]; ok && tag != nil && tag != "" {
		return decodeSpecial(tag)
	}

	if reason, ok := obj[tagFailure]; ok {
		// The reason was encoded in its own pass.
		inner := &decoder{codec: d.codec, memo: make(map[string]any)}

		return promise.Rejected(errors.NewRemoteError(inner.decode(reason, "")))
	}

	if id, ok := obj[tagRef].(string); ok && id != "" {
		kind, _ := obj[fieldType].(string)

		var value any
		if d.codec.importer == nil {
			value = promise.Rejected(&errors.DecodeError{Tag: tagRef})
		} else {
			value = d.codec.importer.Import(id, kind)
		}

		d.memo[path] = value

		return value
	}

	result := make(map[string]any, len(obj))
	d.memo[path] = result

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	for _, k := range keys {
		result[UnescapeKey(k)] = d.decode(obj[k], path+"/"+k)
	}

	return result
}

func decodeSpecial(tag any) any {
	switch t := tag.(type) {
	case string:
		switch t {
		case specialUndefined:
			return Undefined
		case specialPosInfinity:
			return math.Inf(1)
		case specialNegInfinity:
			return math.Inf(-1)
		case specialNaN:
			return math.NaN()
		default:
			return promise.Rejected(&errors.DecodeError{Tag: t})
		}
	case map[string]any:
		typ, _ := t[fieldType].(string)
		value, _ := t[fieldValue].(string)

		switch typ {
		case typeRegExp:
			if re, ok := ParseRegExp(value); ok {
				return re
			}
		case typeDate:
			if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
				return ts.UTC()
			}
		}

		return promise.Rejected(&errors.DecodeError{Tag: typ})
	default:
		return promise.Rejected(&errors.DecodeError{Tag: "%"})
	}
}
