// Package protocol implements the symmetric promise-forwarding protocol.
//
// Each side of a Connection exposes one local root value under the
// identifier "" and receives a Proxy for the peer's root. Operations on a
// proxy travel as send messages; the peer performs them on its local value
// and answers with notify messages for progress and exactly one resolve
// message for the outcome.
//
// The Connection handles:
//   - Registering response, export and pipeline entries under fresh identifiers
//   - Encoding arguments and resolutions as QSON, passing futures and
//     functions by reference
//   - Routing inbound messages in arrival order, ignoring unknown targets
//   - Rejecting every pending entry when the transport closes
//
// Example usage:
//
//	q, _ := transport.New(log, conn, nil, transport.DefaultConfig())
//	q.Start()
//
//	c := protocol.NewConnection(log, q, root, protocol.Config{})
//	c.Start(ctx)
//
//	answer, err := c.Remote().Call(ctx, "ping", 41).Await(ctx)
package protocol
