package meter

import "github.com/ineyio/chatstream"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ chatstream.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnRequest(chatstream.RequestEvent) {}
func (m *NoopMeter) OnResult(chatstream.ResultEvent)   {}
