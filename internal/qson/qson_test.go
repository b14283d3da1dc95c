package qson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	qerrors "github.com/wagiedev/qconn/internal/errors"
	"github.com/wagiedev/qconn/internal/promise"
)

// refs is an in-memory Exporter and Importer.
type refs struct {
	exported map[string]any
	kinds    map[string]string
	full     bool
}

type ref struct {
	id   string
	kind string
}

func newRefs() *refs {
	return &refs{exported: map[string]any{}, kinds: map[string]string{}}
}

func (r *refs) Export(v any, kind string) (string, error) {
	if r.full {
		return "", qerrors.ErrTooManyEntries
	}

	id := fmt.Sprintf("r%d", len(r.exported)+1)
	r.exported[id] = v
	r.kinds[id] = kind

	return id, nil
}

func (r *refs) Import(id string, kind string) any {
	return &ref{id: id, kind: kind}
}

func roundTrip(t *testing.T, c *Codec, v any) any {
	t.Helper()

	data, err := c.Marshal(v)
	require.NoError(t, err)

	decoded, err := c.Unmarshal(data)
	require.NoError(t, err)

	return decoded
}

func TestCodec_RoundTripPlainData(t *testing.T) {
	c := NewCodec(nil, nil)

	tests := []struct {
		name  string
		value any
	}{
		{name: "null", value: nil},
		{name: "bool", value: true},
		{name: "number", value: 3.25},
		{name: "string", value: "hello"},
		{name: "array", value: []any{1.0, "two", false, nil}},
		{name: "object", value: map[string]any{"a": 1.0, "b": []any{"c"}, "d": map[string]any{}}},
		{name: "nested", value: map[string]any{"list": []any{map[string]any{"x": 1.0}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.value, roundTrip(t, c, tt.value))
		})
	}
}

func TestCodec_SpecialPrimitives(t *testing.T) {
	c := NewCodec(nil, nil)

	require.Equal(t, Undefined, roundTrip(t, c, Undefined))
	require.Equal(t, math.Inf(1), roundTrip(t, c, math.Inf(1)))
	require.Equal(t, math.Inf(-1), roundTrip(t, c, math.Inf(-1)))

	nan, ok := roundTrip(t, c, math.NaN()).(float64)
	require.True(t, ok)
	require.True(t, math.IsNaN(nan))

	data, err := c.Marshal([]any{Undefined, math.Inf(1), float32(math.Inf(-1))})
	require.NoError(t, err)
	require.JSONEq(t, `[{"%":"undefined"},{"%":"+Infinity"},{"%":"-Infinity"}]`, string(data))
}

func TestCodec_RegExpAndDate(t *testing.T) {
	c := NewCodec(nil, nil)

	re := RegExp{Source: "a+b", Flags: "gi"}
	require.Equal(t, re, roundTrip(t, c, re))

	data, err := c.Marshal(regexp.MustCompile(`^x\d$`))
	require.NoError(t, err)
	require.JSONEq(t, `{"%":{"type":"RegExp","value":"/^x\\d$/"}}`, string(data))

	when := time.Date(2024, 5, 17, 8, 30, 15, 123_000_000, time.UTC)

	data, err = c.Marshal(when)
	require.NoError(t, err)
	require.JSONEq(t, `{"%":{"type":"Date","value":"2024-05-17T08:30:15.123Z"}}`, string(data))

	decoded, ok := roundTrip(t, c, when).(time.Time)
	require.True(t, ok)
	require.True(t, when.Equal(decoded))
}

func TestRegExp_Compile(t *testing.T) {
	re, err := RegExp{Source: "^abc$", Flags: "gim"}.Compile()
	require.NoError(t, err)
	require.True(t, re.MatchString("x\nABC\ny"))

	_, ok := ParseRegExp("not a literal")
	require.False(t, ok)
}

func TestCodec_KeyEscaping(t *testing.T) {
	c := NewCodec(nil, nil)

	value := map[string]any{
		"@":       "ref",
		"$":       "backref",
		"%":       "special",
		"!":       "failure",
		"a/b":     "path",
		`back\`:   "slash",
		"many@@/": "all escaped",
	}

	data, err := c.Marshal(value)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	require.Contains(t, wire, `\@`)
	require.Contains(t, wire, `a\/b`)
	require.Contains(t, wire, `back\\`)
	require.Contains(t, wire, `many\@\@\/`)

	require.Equal(t, value, roundTrip(t, c, value))
}

func TestEscapeKey_Reversible(t *testing.T) {
	for _, key := range []string{"", "plain", `\`, `\\@`, "@!%$/", `a\/b`} {
		require.Equal(t, key, UnescapeKey(EscapeKey(key)), key)
	}
}

func TestCodec_CycleSafety(t *testing.T) {
	c := NewCodec(nil, nil)

	obj := map[string]any{"name": "root"}
	obj["self"] = obj
	obj["children"] = []any{obj}

	data, err := c.Marshal(obj)
	require.NoError(t, err)
	require.JSONEq(t, `{"children":[{"$":""}],"name":"root","self":{"$":""}}`, string(data))

	decoded, err := c.Unmarshal(data)
	require.NoError(t, err)

	m, ok := decoded.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "root", m["name"])
	require.Equal(t, reflect.ValueOf(m).Pointer(), reflect.ValueOf(m["self"]).Pointer())

	children, ok := m["children"].([]any)
	require.True(t, ok)
	require.Equal(t, reflect.ValueOf(m).Pointer(), reflect.ValueOf(children[0]).Pointer())
}

func TestCodec_SharedValues(t *testing.T) {
	c := NewCodec(nil, nil)

	shared := map[string]any{"v": 1.0}
	value := map[string]any{"a": shared, "b": shared}

	data, err := c.Marshal(value)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":{"v":1},"b":{"$":"/a"}}`, string(data))

	decoded := roundTrip(t, c, value).(map[string]any)
	require.Equal(t, reflect.ValueOf(decoded["a"]).Pointer(), reflect.ValueOf(decoded["b"]).Pointer())
}

func TestCodec_SharedUnderEscapedKey(t *testing.T) {
	c := NewCodec(nil, nil)

	shared := []any{"x"}
	value := map[string]any{"a/b": shared, "c": shared}

	decoded := roundTrip(t, c, value).(map[string]any)
	require.Equal(t, []any{"x"}, decoded["c"])
	require.Equal(t, reflect.ValueOf(decoded["a/b"]).Pointer(), reflect.ValueOf(decoded["c"]).Pointer())
}

func TestCodec_ReferencesUseHooks(t *testing.T) {
	r := newRefs()
	c := NewCodec(r, r)

	fn := promise.Func(func(context.Context, ...any) (any, error) { return nil, nil })
	future := promise.New()

	type handle struct{ name string }

	h := &handle{name: "opaque"}

	data, err := c.Marshal(map[string]any{"fn": fn, "future": future, "handle": h, "again": h})
	require.NoError(t, err)
	require.JSONEq(t, `{
		"again": {"@":"r1","type":"object"},
		"fn": {"@":"r2","type":"function"},
		"future": {"@":"r3","type":"object"},
		"handle": {"$":"/again"}
	}`, string(data))

	require.Same(t, h, r.exported["r1"])
	require.Equal(t, KindFunction, r.kinds["r2"])
	require.Same(t, future, r.exported["r3"])

	decoded, err := c.Unmarshal(data)
	require.NoError(t, err)

	m := decoded.(map[string]any)
	require.Equal(t, &ref{id: "r2", kind: KindFunction}, m["fn"])
	require.Same(t, m["again"], m["handle"])
}

func TestCodec_ExportFailureIsEncodingError(t *testing.T) {
	r := newRefs()
	r.full = true
	c := NewCodec(r, r)

	_, err := c.Marshal(map[string]any{"later": promise.New()})

	var encErr *qerrors.EncodingError

	require.ErrorAs(t, err, &encErr)
	require.Equal(t, "/later", encErr.Path)
	require.ErrorIs(t, err, qerrors.ErrTooManyEntries)

	_, err = NewCodec(nil, nil).Marshal(make(chan int))
	require.ErrorAs(t, err, &encErr)
}

func TestCodec_Errors(t *testing.T) {
	c := NewCodec(nil, nil)

	data, err := c.Marshal(errors.New("went wrong"))
	require.NoError(t, err)
	require.JSONEq(t, `{"message":"went wrong","stack":"went wrong"}`, string(data))

	remote := &qerrors.RemoteError{Message: "far away", Stack: "Error: far away\n    at peer"}

	data, err = c.Marshal(remote)
	require.NoError(t, err)
	require.JSONEq(t, `{"message":"remote error: far away","stack":"Error: far away\n    at peer"}`, string(data))
}

type quotaError struct {
	Limit  int    `json:"limit"`
	Bucket string `json:"-"`
	Region string
	secret string
}

func (e *quotaError) Error() string {
	return fmt.Sprintf("quota of %d exceeded", e.Limit)
}

func TestCodec_ErrorFields(t *testing.T) {
	c := NewCodec(nil, nil)

	data, err := c.Marshal(&quotaError{Limit: 10, Bucket: "b", Region: "eu", secret: "s"})
	require.NoError(t, err)
	require.JSONEq(t, `{"message":"quota of 10 exceeded","stack":"quota of 10 exceeded","limit":10,"Region":"eu"}`, string(data))

	// A forwarded rejection keeps the fields the peer sent.
	remote := qerrors.NewRemoteError(map[string]any{"message": "denied", "stack": "", "code": "E_QUOTA"})

	data, err = c.Marshal(remote)
	require.NoError(t, err)
	require.JSONEq(t, `{"message":"remote error: denied","stack":"remote error: denied","code":"E_QUOTA"}`, string(data))
}

type temperature float64

func (t temperature) MarshalQSON() (any, error) {
	return map[string]any{"celsius": float64(t)}, nil
}

type broken struct{}

func (broken) MarshalQSON() (any, error) {
	return nil, errors.New("cannot marshal")
}

type stamp struct {
	At string `json:"at"`
}

func (s stamp) MarshalJSON() ([]byte, error) {
	type plain stamp

	return json.Marshal(plain(s))
}

func TestCodec_Marshalers(t *testing.T) {
	c := NewCodec(nil, nil)

	data, err := c.Marshal(temperature(21.5))
	require.NoError(t, err)
	require.JSONEq(t, `{"celsius":21.5}`, string(data))

	data, err = c.Marshal(stamp{At: "noon"})
	require.NoError(t, err)
	require.JSONEq(t, `{"at":"noon"}`, string(data))

	_, err = c.Marshal([]any{broken{}})

	var encErr *qerrors.EncodingError

	require.ErrorAs(t, err, &encErr)
	require.Equal(t, "/0", encErr.Path)
}

func TestCodec_NamedScalars(t *testing.T) {
	type color string

	type level int

	c := NewCodec(nil, nil)

	data, err := c.Marshal(map[string]any{"c": color("red"), "l": level(3), "n": []int{1, 2}})
	require.NoError(t, err)
	require.JSONEq(t, `{"c":"red","l":3,"n":[1,2]}`, string(data))
}

func TestCodec_DecodeRejections(t *testing.T) {
	c := NewCodec(nil, nil)

	tests := []struct {
		name  string
		input string
		check func(t *testing.T, err error)
	}{
		{
			name:  "failure wrapper",
			input: `{"!":{"message":"nope","stack":"trace"}}`,
			check: func(t *testing.T, err error) {
				var remote *qerrors.RemoteError

				require.ErrorAs(t, err, &remote)
				require.Equal(t, "nope", remote.Message)
				require.Equal(t, "trace", remote.Stack)
			},
		},
		{
			name:  "null failure marker",
			input: `{"!":null}`,
			check: func(t *testing.T, err error) {
				var remote *qerrors.RemoteError

				require.ErrorAs(t, err, &remote)
				require.Nil(t, remote.Reason)
			},
		},
		{
			name:  "unknown special tag",
			input: `{"%":"Symbol"}`,
			check: func(t *testing.T, err error) {
				var decErr *qerrors.DecodeError

				require.ErrorAs(t, err, &decErr)
				require.Equal(t, "Symbol", decErr.Tag)
			},
		},
		{
			name:  "unknown typed special",
			input: `{"%":{"type":"Map","value":"x"}}`,
			check: func(t *testing.T, err error) {
				var decErr *qerrors.DecodeError

				require.ErrorAs(t, err, &decErr)
				require.Equal(t, "Map", decErr.Tag)
			},
		},
		{
			name:  "reference without importer",
			input: `{"@":"x","type":"object"}`,
			check: func(t *testing.T, err error) {
				var decErr *qerrors.DecodeError

				require.ErrorAs(t, err, &decErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := c.Unmarshal([]byte(tt.input))
			require.NoError(t, err)

			f, ok := decoded.(*promise.Future)
			require.True(t, ok, "expected a rejected future, got %T", decoded)

			_, settled, ferr := f.Result()
			require.True(t, settled)
			tt.check(t, ferr)
		})
	}
}

func TestCodec_NestedFailureStaysInPlace(t *testing.T) {
	decoded, err := NewCodec(nil, nil).Unmarshal([]byte(`{"ok":1,"bad":{"!":"reason"}}`))
	require.NoError(t, err)

	m := decoded.(map[string]any)
	require.Equal(t, 1.0, m["ok"])

	_, _, ferr := m["bad"].(*promise.Future).Result()
	require.EqualError(t, ferr, "remote error: reason")
}

func TestCodec_UnmarshalInvalidJSON(t *testing.T) {
	_, err := NewCodec(nil, nil).Unmarshal([]byte("{not json"))
	require.Error(t, err)
}
