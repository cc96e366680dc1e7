// Package transport owns the TCP connection to a device.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      JSON request/response     │
//	├────────────────────────────────┤
//	│   Line framing (CRLF out, LF in)│
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Timeouts
//
// Dial resolves the device address once and connects with a bounded
// number of attempts (connection.Retrier). The established connection
// applies a fixed timeout (default 200 ms) to every line read and write.
// A timed out read is reported with IsTimeout so callers can tell a
// stalled device from a broken connection.
package transport
