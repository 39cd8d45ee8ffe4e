// Package ws streams document change events to WebSocket clients.
//
// New(buffer) creates a Hub. The store calls Hub.Publish after each write;
// Publish never blocks and drops events when the queue is full. Hub.Run(ctx)
// fans queued events out to clients until ctx is cancelled, then closes every
// connection. Hub.ServeHTTP is mounted at /ws/changes on the admin listener.
//
// Frames are JSON envelopes:
//
//	{"event": "hello",  "data": {"time": "...", "match": "orders/**"}}
//	{"event": "change", "data": {"op": "write", "path": "orders/1.json", "size": 120, "at": "..."}}
//
// A client may pass ?match=<glob> to receive only changes whose path matches.
// Clients that fall sendBufSize messages behind are disconnected.
package ws
