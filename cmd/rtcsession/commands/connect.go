package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/rtcsession/src/negotiation"
	"github.com/mosaicnetworks/rtcsession/src/sdk"
	"github.com/mosaicnetworks/rtcsession/src/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewConnectCmd returns the command that starts a session
func NewConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connect",
		Short:   "Start a session and keep it alive until interrupted",
		PreRunE: loadConfig,
		RunE:    runConnect,
	}
	AddConnectFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runConnect(cmd *cobra.Command, args []string) error {
	logger := _config.RTC.Logger()

	client := sdk.NewSDK(&_config.RTC)

	if err := client.Init(); err != nil {
		logger.WithError(err).Error("Cannot initialize client")
		return err
	}

	client.Session.OnStatus(func(s session.Status) {
		logger.WithField("status", s).Info("Session status")
	})

	if err := client.Start(_config.RTC.Token); err != nil {
		logger.WithError(err).Error("Cannot start session")
		return err
	}
	defer client.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), _config.RTC.HandshakeTimeout+_config.RTC.ProbeTimeout)
	err := client.WaitOnline(ctx)
	cancel()
	if err != nil {
		logger.WithError(err).Error("Session did not come online")
		return err
	}

	if _config.Subscribe != "" {
		res := client.Subscribe(context.Background(), negotiation.Options{
			StreamToken:  _config.Subscribe,
			Capabilities: _config.RTC.Capabilities,
		})
		if res.Status != negotiation.StatusOK {
			err := fmt.Errorf("subscribe: %s", res.Status)
			logger.WithError(res.Err).Error("Cannot subscribe")
			return err
		}

		logger.WithFields(logrus.Fields{
			"stream_id":    res.Stream.ID(),
			"kind":         res.Stream.Kind(),
			"manifest_url": res.Stream.ManifestURL(),
		}).Info("Subscribed")

		res.Stream.OnEnded(func(reason string) {
			logger.WithField("reason", reason).Info("Stream ended")
		})
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	<-signalCh

	logger.Info("Received an interrupt, stopping")

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddConnectFlags adds flags to the Connect command
func AddConnectFlags(cmd *cobra.Command) {
	addDiscoveryFlags(cmd)

	// Session
	cmd.Flags().String("token", _config.RTC.Token, "Authentication token")
	cmd.Flags().String("device-id", _config.RTC.DeviceID, "Device identifier, random if empty")
	cmd.Flags().String("platform", _config.RTC.Platform, "Platform announced on authentication")
	cmd.Flags().String("platform-version", _config.RTC.PlatformVersion, "Platform version announced on authentication")
	cmd.Flags().StringSlice("capabilities", _config.RTC.Capabilities, "Capability tags")

	// Transport
	cmd.Flags().DurationP("timeout", "t", _config.RTC.HandshakeTimeout, "Websocket handshake timeout")
	cmd.Flags().Int("reconnect-retries", _config.RTC.ReconnectRetries, "Redials after the connection drops, 0 to disable")
	cmd.Flags().Duration("reconnect-interval", _config.RTC.ReconnectInterval, "Initial interval between redials")
	cmd.Flags().Duration("reconnect-max-interval", _config.RTC.ReconnectMaxInterval, "Maximum interval between redials")

	// Streams
	cmd.Flags().String("subscribe", _config.Subscribe, "Stream token to subscribe to once online")
	cmd.Flags().Duration("negotiation-timeout", _config.RTC.NegotiationTimeout, "Budget of a stream negotiation")
	cmd.Flags().StringSlice("delivery-kinds", _config.RTC.DeliveryKinds, "Playable deliveries: push-relay, manifest-a, manifest-b")
	cmd.Flags().Bool("prefer-manifest-b", _config.RTC.PreferManifestB, "Prefer manifest-b over manifest-a")
	cmd.Flags().StringSlice("h264-levels", _config.RTC.H264ProfileLevels, "Supported H.264 profile-level-id values")
	cmd.Flags().String("manifest-pattern", _config.RTC.ManifestPattern, "Regular expression applied to delivery URLs")
	cmd.Flags().String("manifest-replacement", _config.RTC.ManifestReplacement, "Replacement for manifest-pattern matches")

	// ICE
	cmd.Flags().String("ice-addr", _config.RTC.ICEAddress, "URI of a STUN or TURN server")
	cmd.Flags().String("ice-username", _config.RTC.ICEUsername, "ICE server username")
	cmd.Flags().String("ice-password", _config.RTC.ICEPassword, "ICE server password")

	// Service
	cmd.Flags().Bool("no-service", _config.RTC.NoService, "Disable the HTTP status service")
	cmd.Flags().StringP("service-listen", "s", _config.RTC.ServiceAddr, "Listen IP:Port for HTTP service")
}
