package mobile

import (
	"time"

	"github.com/mosaicnetworks/rtcsession/src/config"
)

// MobileConfig only uses types gomobile can bind. Lists are comma separated
// and durations are in milliseconds.
type MobileConfig struct {
	Endpoint           string //discovery base URL or ws(s):// address
	DeviceID           string //random if empty
	Platform           string
	PlatformVersion    string
	Capabilities       string //capability tags
	DeliveryKinds      string //push-relay, manifest-a, manifest-b
	PreferManifestB    bool
	H264Levels         string //supported profile-level-id values
	ICEAddress         string //STUN or TURN server
	HandshakeTimeout   int    //websocket handshake timeout in milliseconds
	ReconnectRetries   int    //redials after the connection drops
	NegotiationTimeout int    //stream negotiation budget in milliseconds
	LogLevel           string
}

func NewMobileConfig(endpoint string,
	platform string,
	platformVersion string,
	deliveryKinds string,
	handshakeTimeout int,
	negotiationTimeout int) *MobileConfig {

	conf := DefaultMobileConfig()
	conf.Endpoint = endpoint
	conf.Platform = platform
	conf.PlatformVersion = platformVersion
	conf.DeliveryKinds = deliveryKinds
	conf.HandshakeTimeout = handshakeTimeout
	conf.NegotiationTimeout = negotiationTimeout

	return conf
}

func DefaultMobileConfig() *MobileConfig {
	return &MobileConfig{
		Endpoint:           config.DefaultEndpoint,
		H264Levels:         "42e01f,640032",
		ICEAddress:         config.DefaultICEAddress,
		HandshakeTimeout:   int(config.DefaultHandshakeTimeout / time.Millisecond),
		ReconnectRetries:   config.DefaultReconnectRetries,
		NegotiationTimeout: int(config.DefaultNegotiationTimeout / time.Millisecond),
		LogLevel:           "info",
	}
}

func (m *MobileConfig) toConfig() *config.Config {
	conf := config.NewDefaultConfig()

	conf.Endpoint = m.Endpoint
	conf.DeviceID = m.DeviceID
	if m.Platform != "" {
		conf.Platform = m.Platform
	}
	conf.PlatformVersion = m.PlatformVersion
	conf.Capabilities = splitList(m.Capabilities)
	conf.DeliveryKinds = splitList(m.DeliveryKinds)
	conf.PreferManifestB = m.PreferManifestB
	conf.H264ProfileLevels = splitList(m.H264Levels)
	conf.ICEAddress = m.ICEAddress
	conf.HandshakeTimeout = time.Duration(m.HandshakeTimeout) * time.Millisecond
	conf.ReconnectRetries = m.ReconnectRetries
	conf.NegotiationTimeout = time.Duration(m.NegotiationTimeout) * time.Millisecond
	conf.LogLevel = m.LogLevel
	conf.NoService = true

	return conf
}
