// Package session implements the connection lifecycle of a signaling session:
// endpoint resolution, authentication, and the status machine that follows
// the transport through disconnects, redials, and re-authentication.
//
// All status transitions run on the dispatcher shared with the protocol
// client, so observers see a single linear history. Status can be read from
// any goroutine.
package session
