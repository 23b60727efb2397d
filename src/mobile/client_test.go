package mobile

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/rtcsession/src/codec"
	"github.com/mosaicnetworks/rtcsession/src/common"
	"github.com/mosaicnetworks/rtcsession/src/negotiation"
	"github.com/mosaicnetworks/rtcsession/src/protocol"
	"github.com/mosaicnetworks/rtcsession/src/sdk"
)

const backendURI = "inmem://backend"

type fixedResolver struct{}

func (fixedResolver) Resolve(ctx context.Context, base string) (string, time.Duration, error) {
	return backendURI, 0, nil
}

type noMedia struct{}

func (noMedia) NewLink(negotiation.LinkConfig) (negotiation.Link, error) {
	return nil, negotiation.ErrNoLink
}

type recorder struct {
	mu         sync.Mutex
	statuses   []string
	ended      chan string
	exceptions []string
}

func newRecorder() *recorder {
	return &recorder{ended: make(chan string, 4)}
}

func (r *recorder) OnStatus(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) OnStreamEnded(streamID string, reason string) {
	r.ended <- streamID + ":" + reason
}

func (r *recorder) OnDataQuality(streamID string, status string, reason string) {}

func (r *recorder) OnException(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exceptions = append(r.exceptions, msg)
}

func (r *recorder) sawStatus(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (r *recorder) exceptionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exceptions)
}

func newTestClient(t *testing.T, mc *MobileConfig) (*Client, *recorder) {
	trans := protocol.NewInmemTransport()
	backend := protocol.NewInmemBackend(codec.NewProtocolRegistry(), trans, common.NewTestEntry(t, common.TestLogLevel))
	backend.Handle(codec.TypeAuthenticate, func(protocol.ReceivedRequest) (string, codec.Fields) {
		return codec.TypeAuthenticateResponse, codec.Fields{"status": "ok", "sessionId": "sess-1"}
	})
	backend.Handle(codec.TypeSetupStream, func(protocol.ReceivedRequest) (string, codec.Fields) {
		return codec.TypeSetupStreamResponse, codec.Fields{
			"status":    "ok",
			"streamId":  "st-1",
			"negotiate": true,
			"offer": codec.Fields{
				"type": "offer",
				"sdp":  "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\na=x-push-relay:rtmp://relay/1\r\n",
			},
		}
	})
	backend.Handle(codec.TypeDestroyStream, func(protocol.ReceivedRequest) (string, codec.Fields) {
		return codec.TypeDestroyStreamResponse, codec.Fields{"status": "ok"}
	})
	t.Cleanup(backend.Close)

	conf := mc.toConfig()
	conf.SetLogger(common.NewTestLogger(t, common.TestLogLevel))

	rec := newRecorder()
	c := newClient(conf, func(s *sdk.SDK) {
		s.Transport = trans
		s.Resolver = fixedResolver{}
		s.Media = noMedia{}
	}, rec, rec, rec)

	return c, rec
}

func TestClientSubscribe(t *testing.T) {
	mc := DefaultMobileConfig()
	mc.Endpoint = backendURI
	mc.DeliveryKinds = "push-relay, manifest-a"

	c, rec := newTestClient(t, mc)
	if c == nil {
		t.Fatal("client should be created")
	}
	defer c.Stop()

	c.Start("tok")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.sdk.WaitOnline(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Status() != "online" {
		t.Fatalf("expected online, got %s", c.Status())
	}

	desc := c.Subscribe("sub")

	var info StreamInfo
	if err := json.Unmarshal([]byte(desc), &info); err != nil {
		t.Fatalf("%v: %q", err, desc)
	}
	if info.ID != "st-1" || info.Kind != "push-relay" || info.ManifestURL != "rtmp://relay/1" {
		t.Fatalf("unexpected stream %+v", info)
	}

	if streams := c.GetStreams(); !strings.Contains(streams, `"id":"st-1"`) {
		t.Fatalf("stream not listed: %s", streams)
	}

	c.StopStream("st-1")

	select {
	case ev := <-rec.ended:
		if ev != "st-1:ended" {
			t.Fatalf("unexpected end event %s", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stream end not reported")
	}

	if streams := c.GetStreams(); streams != "[]" {
		t.Fatalf("expected no streams, got %s", streams)
	}

	c.StopStream("st-1")
	if rec.exceptionCount() != 1 {
		t.Fatal("stopping an unknown stream should raise an exception")
	}

	c.sdk.Dispatcher.Flush()
	if !rec.sawStatus("connecting") || !rec.sawStatus("online") {
		t.Fatalf("statuses not forwarded: %v", rec.statuses)
	}
}

func TestClientSubscribeOffline(t *testing.T) {
	mc := DefaultMobileConfig()
	mc.Endpoint = backendURI

	c, rec := newTestClient(t, mc)
	defer c.Stop()

	if desc := c.Subscribe("sub"); desc != "" {
		t.Fatalf("subscribe should fail while offline, got %s", desc)
	}
	if rec.exceptionCount() != 1 {
		t.Fatal("failure should be reported as an exception")
	}
}

func TestNewInvalidConfig(t *testing.T) {
	mc := DefaultMobileConfig()
	mc.Endpoint = backendURI
	mc.DeliveryKinds = "teletext"

	c, rec := newTestClient(t, mc)
	if c != nil {
		t.Fatal("invalid delivery kind should be rejected")
	}
	if rec.exceptionCount() != 1 {
		t.Fatal("rejection should be reported as an exception")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b,c ")
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("unexpected list %v", got)
	}
	if splitList("") != nil {
		t.Fatal("empty list expected")
	}
}
