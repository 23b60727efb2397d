package mobile

import (
	"context"
	"fmt"

	"github.com/mosaicnetworks/rtcsession/src/config"
	"github.com/mosaicnetworks/rtcsession/src/negotiation"
	"github.com/mosaicnetworks/rtcsession/src/sdk"
	"github.com/sirupsen/logrus"
)

// StreamInfo is the JSON description of a stream returned to the
// application.
type StreamInfo struct {
	ID          string `json:"id"`
	Direction   string `json:"direction"`
	Kind        string `json:"kind"`
	ManifestURL string `json:"manifest_url,omitempty"`
}

// Client is the mobile entry point: it owns an SDK and reports its events to
// the application handlers.
type Client struct {
	sdk    *sdk.SDK
	app    *mobileApp
	logger *logrus.Entry
}

// New initializes a Client. It returns nil, after reporting the problem to
// exceptionHandler, if the configuration is invalid.
func New(mobileConfig *MobileConfig,
	statusHandler StatusHandler,
	streamHandler StreamHandler,
	exceptionHandler ExceptionHandler) *Client {

	return newClient(mobileConfig.toConfig(), nil, statusHandler, streamHandler, exceptionHandler)
}

// newClient lets tests replace SDK components before Init.
func newClient(conf *config.Config,
	prepare func(*sdk.SDK),
	statusHandler StatusHandler,
	streamHandler StreamHandler,
	exceptionHandler ExceptionHandler) *Client {

	logger := conf.Logger()

	logger.WithFields(logrus.Fields{
		"endpoint":       conf.Endpoint,
		"platform":       conf.Platform,
		"delivery_kinds": conf.DeliveryKinds,
	}).Debug("New Mobile Client")

	app := newMobileApp(statusHandler, streamHandler, exceptionHandler, logger)

	s := sdk.NewSDK(conf)
	if prepare != nil {
		prepare(s)
	}

	if err := s.Init(); err != nil {
		app.exception(fmt.Sprintf("Cannot initialize client: %s", err))
		return nil
	}

	s.Session.OnStatus(app.onStatus)

	return &Client{
		sdk:    s,
		app:    app,
		logger: logger,
	}
}

// Start starts the session. Status changes are reported to the StatusHandler.
func (c *Client) Start(token string) {
	if err := c.sdk.Start(token); err != nil {
		c.app.exception(fmt.Sprintf("Cannot start session: %s", err))
	}
}

// ReAuthenticate retries authentication with a new token.
func (c *Client) ReAuthenticate(token string) {
	if err := c.sdk.ReAuthenticate(token); err != nil {
		c.app.exception(fmt.Sprintf("Cannot authenticate: %s", err))
	}
}

// Stop ends every stream and the session. It blocks until both are released.
func (c *Client) Stop() {
	c.sdk.Stop()
}

// Status returns the session status.
func (c *Client) Status() string {
	return c.sdk.Status().String()
}

// Publish negotiates an outgoing stream and returns its JSON description, or
// an empty string on failure.
func (c *Client) Publish(streamToken string) string {
	return c.negotiate(negotiation.Publish, streamToken)
}

// Subscribe negotiates an incoming stream and returns its JSON description,
// or an empty string on failure.
func (c *Client) Subscribe(streamToken string) string {
	return c.negotiate(negotiation.Subscribe, streamToken)
}

func (c *Client) negotiate(dir negotiation.Direction, streamToken string) string {
	opts := negotiation.Options{StreamToken: streamToken}

	var res negotiation.Result
	if dir == negotiation.Publish {
		res = c.sdk.Publish(context.Background(), opts)
	} else {
		res = c.sdk.Subscribe(context.Background(), opts)
	}

	if res.Status != negotiation.StatusOK {
		msg := fmt.Sprintf("Cannot %s stream: %s", dir, res.Status)
		if res.Err != nil {
			msg += fmt.Sprintf(" (%s)", res.Err)
		}
		c.app.exception(msg)
		return ""
	}

	c.app.watch(res.Stream)

	return toJSON(streamInfo(res.Stream))
}

// StopStream ends the stream with the given id.
func (c *Client) StopStream(streamID string) {
	s, ok := c.sdk.Engine.Stream(streamID)
	if !ok {
		c.app.exception(fmt.Sprintf("Unknown stream %s", streamID))
		return
	}
	s.Stop(negotiation.ReasonEnded)
}

// GetStreams returns the JSON list of registered streams.
func (c *Client) GetStreams() string {
	streams := c.sdk.Engine.Streams()

	infos := make([]StreamInfo, 0, len(streams))
	for _, s := range streams {
		infos = append(infos, streamInfo(s))
	}

	return toJSON(infos)
}

func streamInfo(s *negotiation.Stream) StreamInfo {
	return StreamInfo{
		ID:          s.ID(),
		Direction:   string(s.Direction()),
		Kind:        s.Kind().String(),
		ManifestURL: s.ManifestURL(),
	}
}
