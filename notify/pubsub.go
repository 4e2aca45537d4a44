package notify

import (
	"context"

	"github.com/kasuganosora/socialgraph/cache"
)

// PubSubSink publishes notifications on the recipient's user channel.
type PubSubSink struct {
	ps cache.PubSub
}

// NewPubSubSink creates a sink on ps.
func NewPubSubSink(ps cache.PubSub) *PubSubSink {
	return &PubSubSink{ps: ps}
}

func (s *PubSubSink) Deliver(ctx context.Context, ev Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	return s.ps.Publish(ctx, UserChannel(ev.Recipient), string(data))
}
