package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mosaicnetworks/rtcsession/src/resolver"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewResolveCmd returns the command that discovers and ranks endpoints
func NewResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resolve [base]",
		Short:   "Discover endpoints and print the fastest",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: loadConfig,
		RunE:    runResolve,
	}
	AddResolveFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runResolve(cmd *cobra.Command, args []string) error {
	base := _config.RTC.Endpoint
	if len(args) > 0 {
		base = args[0]
	}

	r := newResolver()

	uri, latency, err := r.Resolve(context.Background(), base)
	if err != nil {
		_config.RTC.Logger().WithError(err).Error("Cannot resolve endpoint")
		return err
	}

	_config.RTC.Logger().WithFields(logrus.Fields{
		"uri":     uri,
		"latency": latency,
	}).Debug("Resolved")

	fmt.Printf("%s %s\n", uri, latency)

	return nil
}

func newResolver() *resolver.Resolver {
	retries := _config.RTC.DiscoveryRetries
	if retries < 0 {
		retries = 0
	}

	return resolver.NewResolver(resolver.Config{
		Version:          _config.RTC.DiscoveryVersion,
		ProbeAttempts:    _config.RTC.ProbeAttempts,
		DiscoveryRetries: uint64(retries),
		RetryInterval:    _config.RTC.RetryInterval,
		HTTPClient:       &http.Client{Timeout: _config.RTC.ProbeTimeout},
	}, _config.RTC.Logger())
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddResolveFlags adds flags to the Resolve command
func AddResolveFlags(cmd *cobra.Command) {
	addDiscoveryFlags(cmd)
}

func addDiscoveryFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("endpoint", "e", _config.RTC.Endpoint, "Discovery base URL, or ws(s):// address to connect to directly")
	cmd.Flags().String("discovery-version", _config.RTC.DiscoveryVersion, "Version parameter of discovery requests")
	cmd.Flags().Int("probe-attempts", _config.RTC.ProbeAttempts, "Failed probes before a candidate is given up")
	cmd.Flags().Int("discovery-retries", _config.RTC.DiscoveryRetries, "Retries of a failed discovery request")
	cmd.Flags().Duration("retry-interval", _config.RTC.RetryInterval, "Initial interval between discovery retries")
	cmd.Flags().Duration("probe-timeout", _config.RTC.ProbeTimeout, "Timeout of a discovery or probe request")
}
