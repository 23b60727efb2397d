package commands

import (
	"os"

	"github.com/mosaicnetworks/rtcsession/src/config"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	_config = NewDefaultCLIConfig()
)

func init() {
	RootCmd.PersistentFlags().String("datadir", _config.RTC.DataDir, "Top-level directory for configuration")
	RootCmd.PersistentFlags().String("log", _config.RTC.LogLevel, "debug, info, warn, error, fatal, panic")
	RootCmd.PersistentFlags().String("log-file", _config.LogFile, "Also write logs to this file")
}

// RootCmd is the root command for rtcsession
var RootCmd = &cobra.Command{
	Use:              "rtcsession",
	Short:            "real-time media session client",
	TraverseChildren: true,
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := bindFlagsLoadViper(cmd); err != nil {
		return err
	}

	_config.RTC.SetLogger(newLogger())

	_config.RTC.Logger().WithFields(logrus.Fields{
		"DataDir":          _config.RTC.DataDir,
		"LogLevel":         _config.RTC.LogLevel,
		"Endpoint":         _config.RTC.Endpoint,
		"DeviceID":         _config.RTC.DeviceID,
		"Platform":         _config.RTC.Platform,
		"ProbeAttempts":    _config.RTC.ProbeAttempts,
		"HandshakeTimeout": _config.RTC.HandshakeTimeout,
		"ReconnectRetries": _config.RTC.ReconnectRetries,
		"DeliveryKinds":    _config.RTC.DeliveryKinds,
		"NoService":        _config.RTC.NoService,
		"ServiceAddr":      _config.RTC.ServiceAddr,
		"ICEAddress":       _config.RTC.ICEAddress,
		"LogFile":          _config.LogFile,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/rtcsession.toml (.json, .yaml also work)
	viper.SetConfigName("rtcsession")        // name of config file (without extension)
	viper.AddConfigPath(_config.RTC.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.RTC.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.RTC.Logger().Debugf("No config file found in: %s", _config.RTC.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Level = config.LogLevel(_config.RTC.LogLevel)
	logger.Formatter = new(prefixed.TextFormatter)

	if _config.LogFile == "" {
		return logger
	}

	f, err := os.OpenFile(_config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logger.Infof("Failed to open %s, using default stderr", _config.LogFile)
		return logger
	}
	f.Close()

	pathMap := lfshook.PathMap{}
	for _, level := range logrus.AllLevels {
		pathMap[level] = _config.LogFile
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))

	return logger
}
