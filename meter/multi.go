package meter

import "github.com/ineyio/chatstream"

// MultiMeter fans events out to several meters in order.
type MultiMeter []chatstream.Meter

var _ chatstream.Meter = MultiMeter(nil)

// Multi combines meters. Nil entries are dropped.
func Multi(meters ...chatstream.Meter) MultiMeter {
	out := make(MultiMeter, 0, len(meters))
	for _, m := range meters {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func (mm MultiMeter) OnRequest(e chatstream.RequestEvent) {
	for _, m := range mm {
		m.OnRequest(e)
	}
}

func (mm MultiMeter) OnResult(e chatstream.ResultEvent) {
	for _, m := range mm {
		m.OnResult(e)
	}
}
