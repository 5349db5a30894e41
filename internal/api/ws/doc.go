// Package ws serves the broadcast and log channels over WebSocket.
//
//	GET /ws/events  JSON {type, data, state?}; any origin
//	GET /ws/logs    text frames, markup stripped; trusted origins only
//
// A client that cannot keep up is cut off rather than slowing the
// publisher down.
package ws
