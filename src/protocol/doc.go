// Package protocol implements the framed request/response client of the
// signaling protocol.
//
// A Client owns one persistent transport connection. Outgoing requests are
// wrapped in a wire.Request envelope carrying a connection-unique request id,
// and the matching wire.Response is routed back to the callback registered for
// that id. Responses whose type is a known push event are broadcast to the
// handlers registered with On instead.
//
// Every inbound frame, every callback, and every event handler runs on the
// client's Dispatcher goroutine, one at a time, in arrival order. Handlers must
// therefore not block; anything slow belongs in its own goroutine.
//
// The client does not time requests out. Callers that need a deadline use
// Request with a context, or enforce their own budget around SendRequest.
// When the connection is lost, every outstanding request completes with
// ErrDisconnected and nothing is retried at this layer. The connection itself
// is redialled in the background according to the ReconnectPolicy.
package protocol
