package negotiation

import (
	"fmt"
	"regexp"

	"github.com/pion/sdp/v2"
)

// Kind is the delivery of a subscribed stream.
type Kind int

// Delivery kinds.
const (
	KindInteractive Kind = iota
	KindPushRelay
	KindManifestA
	KindManifestB
)

// String returns the string representation of a Kind
func (k Kind) String() string {
	switch k {
	case KindInteractive:
		return "interactive"
	case KindPushRelay:
		return "push-relay"
	case KindManifestA:
		return "manifest-a"
	case KindManifestB:
		return "manifest-b"
	default:
		return "unknown"
	}
}

// ParseKind parses the capability tag of a delivery kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "interactive":
		return KindInteractive, nil
	case "push-relay":
		return KindPushRelay, nil
	case "manifest-a":
		return KindManifestA, nil
	case "manifest-b":
		return KindManifestB, nil
	default:
		return KindInteractive, fmt.Errorf("unknown delivery kind %q", s)
	}
}

// Offer attributes marking alternative deliveries. Their value is the URL of
// the delivery.
const (
	AttrPushRelay = "x-push-relay"
	AttrManifestA = "x-playlist"
	AttrManifestB = "x-manifest"
)

// Capabilities describes what this client can play and how it adapts offers.
type Capabilities struct {
	// Kinds lists the non-interactive deliveries that can be played
	Kinds []Kind
	// PreferManifestB picks manifest-B over manifest-A when both are offered
	PreferManifestB bool
	// H264ProfileLevels lists the profile-level-id values (six hex digits)
	// the local decoder supports
	H264ProfileLevels []string
}

func (c Capabilities) playable(k Kind) bool {
	if k == KindInteractive {
		return true
	}
	for _, p := range c.Kinds {
		if p == k {
			return true
		}
	}
	return false
}

// offerMarkers returns the delivery URLs announced in the offer, by kind.
// Markers may sit at session or media level; the first occurrence wins.
func offerMarkers(raw string) (map[Kind]string, error) {
	desc := sdp.SessionDescription{}
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil, fmt.Errorf("parsing offer: %w", err)
	}

	keys := map[string]Kind{
		AttrPushRelay: KindPushRelay,
		AttrManifestA: KindManifestA,
		AttrManifestB: KindManifestB,
	}

	markers := make(map[Kind]string)
	collect := func(attrs []sdp.Attribute) {
		for _, a := range attrs {
			if k, ok := keys[a.Key]; ok {
				if _, seen := markers[k]; !seen {
					markers[k] = a.Value
				}
			}
		}
	}

	collect(desc.Attributes)
	for _, md := range desc.MediaDescriptions {
		collect(md.Attributes)
	}

	return markers, nil
}

// selectKind picks the delivery of a subscribed stream. An offer without
// markers is interactive.
func selectKind(markers map[Kind]string, caps Capabilities) (Kind, string, bool) {
	if len(markers) == 0 {
		return KindInteractive, "", true
	}

	offered := func(k Kind) (string, bool) {
		url, ok := markers[k]
		return url, ok && caps.playable(k)
	}

	if url, ok := offered(KindPushRelay); ok {
		return KindPushRelay, url, true
	}
	if url, ok := offered(KindManifestA); ok {
		if _, b := offered(KindManifestB); !(b && caps.PreferManifestB) {
			return KindManifestA, url, true
		}
	}
	if url, ok := offered(KindManifestB); ok {
		return KindManifestB, url, true
	}

	return 0, "", false
}

// rewriteURL applies the configured substitution, if any.
func rewriteURL(url string, pattern *regexp.Regexp, replacement string) string {
	if pattern == nil {
		return url
	}
	return pattern.ReplaceAllString(url, replacement)
}
