package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/rtcsession/src/common"
	webrtc "github.com/pion/webrtc/v2"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default configuration values.
const (
	DefaultLogLevel             = "debug"
	DefaultEndpoint             = "https://rtc.example.com"
	DefaultServiceAddr          = "127.0.0.1:8000"
	DefaultPlatform             = runtime.GOOS
	DefaultDiscoveryVersion     = "3"
	DefaultProbeAttempts        = 4
	DefaultDiscoveryRetries     = 3
	DefaultRetryInterval        = 250 * time.Millisecond
	DefaultProbeTimeout         = 5 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultReconnectRetries     = 5
	DefaultReconnectInterval    = 250 * time.Millisecond
	DefaultReconnectMaxInterval = 5 * time.Second
	DefaultNegotiationTimeout   = 15 * time.Second
	DefaultPreferManifestB      = false
	DefaultICEAddress           = "stun:stun.l.google.com:19302"
	DefaultICEUsername          = ""
	DefaultICEPassword          = ""
)

// Config contains all the configuration properties of an rtcsession client.
type Config struct {
	// DataDir is the directory holding the optional configuration file.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// Endpoint is either the base URL of the discovery service, which lists
	// the candidate signaling endpoints, or a direct ws:// or wss:// address
	// that is used without discovery.
	Endpoint string `mapstructure:"endpoint"`

	// Token is the authentication token presented when the session starts.
	Token string `mapstructure:"token"`

	// DeviceID identifies this client instance. A random one is generated
	// when empty.
	DeviceID string `mapstructure:"device-id"`

	// Platform and PlatformVersion are announced on authentication.
	Platform        string `mapstructure:"platform"`
	PlatformVersion string `mapstructure:"platform-version"`

	// Capabilities are the capability tags announced on authentication and
	// stream setup.
	Capabilities []string `mapstructure:"capabilities"`

	// DiscoveryVersion is sent as the version parameter of discovery
	// requests.
	DiscoveryVersion string `mapstructure:"discovery-version"`

	// ProbeAttempts is the number of failed probes after which a candidate
	// endpoint is given up.
	ProbeAttempts int `mapstructure:"probe-attempts"`

	// DiscoveryRetries is the number of times a failed discovery request is
	// retried.
	DiscoveryRetries int `mapstructure:"discovery-retries"`

	// RetryInterval is the initial interval between discovery retries.
	RetryInterval time.Duration `mapstructure:"retry-interval"`

	// ProbeTimeout bounds a single discovery or probe request.
	ProbeTimeout time.Duration `mapstructure:"probe-timeout"`

	// HandshakeTimeout bounds the websocket handshake.
	HandshakeTimeout time.Duration `mapstructure:"timeout"`

	// ReconnectRetries is the number of redials attempted after the
	// connection drops. Zero disables redialling.
	ReconnectRetries int `mapstructure:"reconnect-retries"`

	// ReconnectInterval and ReconnectMaxInterval bound the exponential backoff
	// between redials.
	ReconnectInterval    time.Duration `mapstructure:"reconnect-interval"`
	ReconnectMaxInterval time.Duration `mapstructure:"reconnect-max-interval"`

	// NegotiationTimeout is the default budget of a publish or subscribe.
	NegotiationTimeout time.Duration `mapstructure:"negotiation-timeout"`

	// DeliveryKinds lists the non-interactive deliveries this client can play:
	// push-relay, manifest-a, manifest-b.
	DeliveryKinds []string `mapstructure:"delivery-kinds"`

	// PreferManifestB picks manifest-b over manifest-a when both are offered.
	PreferManifestB bool `mapstructure:"prefer-manifest-b"`

	// H264ProfileLevels lists the H.264 profile-level-id values supported by
	// the local decoder, as six hex digits.
	H264ProfileLevels []string `mapstructure:"h264-levels"`

	// ManifestPattern is a regular expression applied to manifest and relay
	// URLs, which are rewritten with ManifestReplacement.
	ManifestPattern     string `mapstructure:"manifest-pattern"`
	ManifestReplacement string `mapstructure:"manifest-replacement"`

	// NoService disables the HTTP status service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service. The
	// handlers are registered with the DefaultServeMux of the http package.
	ServiceAddr string `mapstructure:"service-listen"`

	// ICE address is the URI of a server providing services for ICE, such as
	// STUN and TURN. Username and password can be empty if the ICE server does
	// not use authentication.
	ICEAddress  string `mapstructure:"ice-addr"`
	ICEUsername string `mapstructure:"ice-username"`
	ICEPassword string `mapstructure:"ice-password"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:              DefaultDataDir(),
		LogLevel:             DefaultLogLevel,
		Endpoint:             DefaultEndpoint,
		Platform:             DefaultPlatform,
		DiscoveryVersion:     DefaultDiscoveryVersion,
		ProbeAttempts:        DefaultProbeAttempts,
		DiscoveryRetries:     DefaultDiscoveryRetries,
		RetryInterval:        DefaultRetryInterval,
		ProbeTimeout:         DefaultProbeTimeout,
		HandshakeTimeout:     DefaultHandshakeTimeout,
		ReconnectRetries:     DefaultReconnectRetries,
		ReconnectInterval:    DefaultReconnectInterval,
		ReconnectMaxInterval: DefaultReconnectMaxInterval,
		NegotiationTimeout:   DefaultNegotiationTimeout,
		PreferManifestB:      DefaultPreferManifestB,
		H264ProfileLevels:    []string{"42e01f", "4d001f", "640032"},
		ServiceAddr:          DefaultServiceAddr,
		ICEAddress:           DefaultICEAddress,
		ICEUsername:          DefaultICEUsername,
		ICEPassword:          DefaultICEPassword,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.NoService = true
	config.RetryInterval = time.Millisecond
	config.ReconnectInterval = time.Millisecond
	config.logger = common.NewTestLogger(t, level)
	return config
}

// ConfigFile returns the base path, without extension, of the optional
// configuration file.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "rtcsession")
}

// ICEServers returns the ICE servers used by media links. The list is empty
// when no ICE address is configured.
func (c *Config) ICEServers() []webrtc.ICEServer {
	if c.ICEAddress == "" {
		return nil
	}

	server := webrtc.ICEServer{
		URLs: []string{c.ICEAddress},
	}
	if c.ICEUsername != "" {
		server.Username = c.ICEUsername
		server.Credential = c.ICEPassword
		server.CredentialType = webrtc.ICECredentialTypePassword
	}

	return []webrtc.ICEServer{server}
}

// Logger returns a formatted logrus Entry, with prefix set to "rtcsession".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "rtcsession")
}

// SetLogger replaces the logger returned by Logger.
func (c *Config) SetLogger(l *logrus.Logger) {
	c.logger = l
}

// DefaultDataDir return the default directory name for the configuration
// file, based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".RTCSession")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "RTCSession")
		} else {
			return filepath.Join(home, ".rtcsession")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
