package qson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Reference kinds carried in the "type" field of a reference node.
const (
	KindObject   = "object"
	KindFunction = "function"
)

// Wire tags.
const (
	tagRef     = "@"
	tagSpecial = "%"
	tagBackref = "$"
	tagFailure = "!"
	fieldType  = "type"
	fieldValue = "value"
)

// Special primitive tags.
const (
	specialUndefined   = "undefined"
	specialPosInfinity = "+Infinity"
	specialNegInfinity = "-Infinity"
	specialNaN         = "NaN"
	typeRegExp         = "RegExp"
	typeDate           = "Date"
)

// dateLayout is the ISO-8601 UTC form with millisecond precision.
const dateLayout = "2006-01-02T15:04:05.000Z"

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined represents an absent value, distinct from nil (null).
var Undefined = undefined{}

// RegExp is a regular expression in its portable source/flags form.
type RegExp struct {
	Source string
	Flags  string
}

var regexpLiteral = regexp.MustCompile(`^/(.*?)/([dgimsuy]*)$`)

// ParseRegExp parses the "/source/flags" literal form.
func ParseRegExp(literal string) (RegExp, bool) {
	m := regexpLiteral.FindStringSubmatch(literal)
	if m == nil {
		return RegExp{}, false
	}

	return RegExp{Source: m[1], Flags: m[2]}, true
}

func (r RegExp) String() string {
	return "/" + r.Source + "/" + r.Flags
}

// Compile builds a Go regexp. The i, m and s flags map to inline flags; the
// remaining flags only affect iteration and are ignored.
func (r RegExp) Compile() (*regexp.Regexp, error) {
	var inline strings.Builder

	for _, f := range r.Flags {
		if strings.ContainsRune("ims", f) {
			inline.WriteRune(f)
		}
	}

	if inline.Len() == 0 {
		return regexp.Compile(r.Source)
	}

	return regexp.Compile("(?" + inline.String() + ")" + r.Source)
}

// Marshaler is implemented by values that know their own QSON data form.
// The returned value is encoded in place of the receiver.
type Marshaler interface {
	MarshalQSON() (any, error)
}

// Exporter registers a local value that crosses the boundary by reference
// and returns its identifier.
type Exporter interface {
	Export(value any, kind string) (string, error)
}

// Importer returns the local stand-in for a reference the peer exported.
type Importer interface {
	Import(id string, kind string) any
}

// Codec encodes Go values into QSON data trees and back.
//
// A Codec is safe for concurrent use; each Encode and Decode call keeps its
// own memo.
type Codec struct {
	exporter Exporter
	importer Importer
}

// NewCodec creates a codec. Either hook may be nil, in which case values
// that need it fail to encode or decode to a rejected future.
func NewCodec(exporter Exporter, importer Importer) *Codec {
	return &Codec{exporter: exporter, importer: importer}
}

// Encode converts v into a tree of JSON-compatible values.
func (c *Codec) Encode(v any) (any, error) {
	e := &encoder{codec: c, memo: make(map[identity]string)}

	return e.encode(v, "")
}

// Decode converts a JSON data tree produced by encoding/json back into Go
// values.
func (c *Codec) Decode(tree any) any {
	d := &decoder{codec: c, memo: make(map[string]any)}

	return d.decode(tree, "")
}

// Marshal encodes v and renders it as JSON.
func (c *Codec) Marshal(v any) (json.RawMessage, error) {
	tree, err := c.Encode(v)
	if err != nil {
		return nil, err
	}

	return Render(tree)
}

// Unmarshal parses JSON data and decodes it.
func (c *Codec) Unmarshal(data []byte) (any, error) {
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}

	return c.Decode(tree), nil
}

// Failure wraps an already encoded reason in the failure tag.
func Failure(reason any) map[string]any {
	return map[string]any{tagFailure: reason}
}

// Render writes an encoded tree as compact JSON without HTML escaping.
func Render(tree any) (json.RawMessage, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

var (
	keyEscaper   = strings.NewReplacer(`\`, `\\`, `@`, `\@`, `!`, `\!`, `%`, `\%`, `$`, `\$`, `/`, `\/`)
	keyUnescaper = strings.NewReplacer(`\\`, `\`, `\@`, `@`, `\!`, `!`, `\%`, `%`, `\$`, `$`, `\/`, `/`)
)

// EscapeKey prefixes every sigil character in an object key with a
// backslash so the key cannot be mistaken for a tag or a path separator.
func EscapeKey(key string) string {
	return keyEscaper.Replace(key)
}

// UnescapeKey reverses EscapeKey.
func UnescapeKey(key string) string {
	return keyUnescaper.Replace(key)
}
