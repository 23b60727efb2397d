package mobile

import (
	"github.com/mosaicnetworks/rtcsession/src/negotiation"
	"github.com/mosaicnetworks/rtcsession/src/session"
	"github.com/sirupsen/logrus"
)

/*
This type is not exported
*/

// mobileApp forwards session and stream events to the application handlers.
// Nil handlers are skipped.
type mobileApp struct {
	statusHandler    StatusHandler
	streamHandler    StreamHandler
	exceptionHandler ExceptionHandler
	logger           *logrus.Entry
}

func newMobileApp(statusHandler StatusHandler,
	streamHandler StreamHandler,
	exceptionHandler ExceptionHandler,
	logger *logrus.Entry) *mobileApp {
	mobileApp := &mobileApp{
		statusHandler:    statusHandler,
		streamHandler:    streamHandler,
		exceptionHandler: exceptionHandler,
		logger:           logger,
	}
	return mobileApp
}

func (m *mobileApp) onStatus(s session.Status) {
	if m.statusHandler != nil {
		m.statusHandler.OnStatus(s.String())
	}
}

// watch subscribes the stream handler to the events of s.
func (m *mobileApp) watch(s *negotiation.Stream) {
	if m.streamHandler == nil {
		return
	}

	id := s.ID()

	s.OnEnded(func(reason string) {
		m.streamHandler.OnStreamEnded(id, reason)
	})

	s.OnDataQualityChanged(func(q negotiation.DataQuality) {
		m.streamHandler.OnDataQuality(id, q.Status, q.Reason)
	})
}

func (m *mobileApp) exception(msg string) {
	m.logger.Warn(msg)
	if m.exceptionHandler != nil {
		m.exceptionHandler.OnException(msg)
	}
}
