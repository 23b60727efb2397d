// Package codec implements the typed message codec used on the signaling wire.
//
// Every message type is described by a Schema registered in a Registry under a
// dotted name (namespace.MessageName). Messages are handled as Fields, a plain
// map from field name to value, which keeps the protocol layers free of
// generated structs and lets them pass messages through untouched.
//
// On the wire a message is a msgpack map keyed by field name. Enumerated
// fields travel as numbers; Decode resolves them back to their symbolic names,
// recursing into nested messages. Values that do not correspond to a known
// symbol are left as raw numbers so that newer backends can add values without
// breaking older clients.
package codec
