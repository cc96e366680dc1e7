// Package session implements the command session: request ids, request
// framing and the resend policy for a stalled device.
//
// # Request Flow
//
//	Send(method, params)
//	  │
//	  ├─ assign id (1, 2, 3, ... never reused)
//	  ├─ write {"id":..,"method":..,"params":[..]}\r\n
//	  ├─ read one line
//	  │    ├─ ok ─────────────────────────────► trimmed line
//	  │    ├─ timeout ─► write same bytes again
//	  │    │             └─ read once more ───► trimmed line or error
//	  │    └─ other error ────────────────────► error
//
// A device occasionally stalls on a single command without closing the
// connection. Resending the identical bytes is safe because the setters
// used by this client are idempotent. There is never more than one resend
// per request.
//
// # Response Correlation
//
// Responses are not matched against request ids by default, to stay
// compatible with devices that answer with stray lines. A mismatching id
// is logged and captured; Config.StrictIDs turns it into ErrIDMismatch.
package session
