// Package qson implements QSON, a JSON-compatible encoding for values that
// plain JSON cannot express.
//
// Encoding maps Go values onto a tree of JSON values:
//
//	nil, bool, string, finite numbers   as themselves
//	Undefined, ±Inf, NaN                {"%": "undefined" | "+Infinity" | "-Infinity" | "NaN"}
//	RegExp, *regexp.Regexp              {"%": {"type": "RegExp", "value": "/source/flags"}}
//	time.Time                           {"%": {"type": "Date", "value": "2006-01-02T15:04:05.000Z"}}
//	string-keyed maps, slices, errors   objects and arrays, keys escaped with EscapeKey
//	futures, functions, everything else {"@": id, "type": "object" | "function"}
//	a map, slice or pointer seen before {"$": path}
//
// References are registered through the Exporter hook and materialized on the
// other side through the Importer hook. Paths are "" for the root and
// parent + "/" + escaped key below it.
//
// Object keys are visited in sorted order on both sides, which is also the
// order encoding/json writes them, so backreference paths resolve against
// values the decoder has already materialized.
package qson
