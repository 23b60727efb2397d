// Package resolver discovers the signaling endpoints available for a base
// address and picks one by racing latency probes against all of them.
//
// The race is deliberately loose: every candidate gets its own probing loop,
// all loops report into a shared best-result cell, and the first loop to
// finish (by succeeding or by running out of attempts) ends the race. The
// endpoint returned is whatever the cell holds at that moment, which is not
// necessarily the fastest endpoint overall.
package resolver
