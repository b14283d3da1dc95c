// Package promise provides the completion primitive shared by local and
// remote values.
//
// A Future settles exactly once and may report progress before it does.
// Futures are Invokers: operations sent to a future are performed on its
// eventual value, which may be a local map, slice or function, an Object
// with its own dispatch, or another Invoker such as a remote proxy.
//
// Operations follow a small fixed vocabulary:
//
//	get    [name]
//	set    [name, value]
//	delete [name]
//	post   [name, args]   // name nil calls the value itself
//	apply  [this, args]
//	keys   []
package promise
