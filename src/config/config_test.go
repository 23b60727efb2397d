package config

import (
	"testing"

	webrtc "github.com/pion/webrtc/v2"
	"github.com/sirupsen/logrus"
)

func TestICEServers(t *testing.T) {
	c := NewDefaultConfig()

	servers := c.ICEServers()
	if len(servers) != 1 || servers[0].URLs[0] != DefaultICEAddress {
		t.Fatalf("unexpected default ICE servers %v", servers)
	}
	if servers[0].Username != "" {
		t.Fatal("default ICE server should not carry credentials")
	}

	c.ICEAddress = "turn:turn.example.com:3478"
	c.ICEUsername = "user"
	c.ICEPassword = "secret"

	servers = c.ICEServers()
	if servers[0].Username != "user" || servers[0].Credential != "secret" {
		t.Fatalf("credentials not set: %+v", servers[0])
	}
	if servers[0].CredentialType != webrtc.ICECredentialTypePassword {
		t.Fatalf("unexpected credential type %v", servers[0].CredentialType)
	}

	c.ICEAddress = ""
	if servers := c.ICEServers(); servers != nil {
		t.Fatalf("no ICE server expected, got %v", servers)
	}
}

func TestLogLevel(t *testing.T) {
	levels := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"bogus": logrus.DebugLevel,
	}
	for in, want := range levels {
		if got := LogLevel(in); got != want {
			t.Errorf("%s: expected %s, got %s", in, want, got)
		}
	}
}

func TestLogger(t *testing.T) {
	c := NewTestConfig(t, logrus.DebugLevel)

	entry := c.Logger()
	if entry.Data["prefix"] != "rtcsession" {
		t.Fatalf("logger should carry the rtcsession prefix, got %v", entry.Data)
	}
	if !c.NoService {
		t.Fatal("test config should disable the service")
	}
}
