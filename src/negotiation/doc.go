// Package negotiation sets up publish and subscribe streams over an online
// session.
//
// A negotiation sends stream.SetupStream, adapts the offer it gets back to the
// local capabilities, answers it through a MediaTransport, and once the
// backend acknowledges the answer commits it and registers a Stream under the
// backend's stream id. Offers that advertise a push-relay or manifest delivery
// are resolved to a URL instead of a media link.
//
// Every step after the initial call runs on the protocol client's dispatcher.
package negotiation
