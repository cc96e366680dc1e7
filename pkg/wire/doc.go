// Package wire defines the JSON wire format of the light control protocol.
//
// Each request is a single-line JSON object terminated by CRLF:
//
//	{"id":1,"method":"set_power","params":["on","smooth",500,1]}
//
// Parameters are an untagged union of small unsigned integers and strings
// and always encode as bare JSON values.
//
// Responses are single lines terminated by LF. Their content is opaque to
// the client; DecodeResponse exists for id correlation and capture only.
package wire
