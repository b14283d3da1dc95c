// Package transport adapts byte-stream endpoints into a queue of frames.
//
// A Queue reads from a source (an io.Reader), splits the stream on a fixed
// delimiter and yields one frame per Get. Put appends the delimiter and
// hands the frame to a writer goroutine, returning an advisory backpressure
// hint instead of blocking.
//
// The endpoints may be a single duplex stream such as a net.Conn, or a
// distinct reader and writer such as os.Stdin and os.Stdout:
//
//	q, err := transport.New(log, conn, nil, transport.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	q.Start()
//	defer q.Close(nil)
//
//	q.Put([]byte(`{"type":"resolve","to":"","resolution":1}`))
//	frame, err := q.Get(ctx)
//
// The source reaching end-of-input, a read or write failure, and the sink
// finishing its flush after Close all close the queue; Done and Err report
// the outcome.
package transport
