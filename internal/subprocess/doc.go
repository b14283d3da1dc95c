// Package subprocess runs a peer program as a child process and exposes its
// stdout and stdin as one duplex stream.
//
// A Process handles process lifecycle management, stderr buffering for error
// reports, and orderly shutdown: closing stdin first and killing the child
// only if it does not exit on its own.
package subprocess
