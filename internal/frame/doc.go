// Package frame implements the wire protocol for graded access updates: the
// binary frame codec with CRC-32 integrity checking, the compact JSON form
// used on transports that forbid binary payloads, and the push-stream parser
// that reassembles frames from chunked server output.
package frame
