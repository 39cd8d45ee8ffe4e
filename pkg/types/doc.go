// Package types defines the wire types shared by the datastore server and
// the datactl client: the write acknowledgement returned by POST /data/...
// and the change events streamed over the WebSocket feed.
package types
