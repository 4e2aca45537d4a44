package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kasuganosora/socialgraph/cache"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
	err    error
}

func (s *recordSink) Deliver(_ context.Context, ev Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordSink) got() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

type recordPublisher struct {
	mu   sync.Mutex
	msgs []*nats.Msg
}

func (p *recordPublisher) PublishMsg(m *nats.Msg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, m)
	return nil
}

var allOn = Preferences{OnFriendRequest: true, OnRequestAccepted: true, OnFriendRemoved: true}

func TestDispatcher_PreferencesFilter(t *testing.T) {
	sink := &recordSink{}
	d := NewDispatcher(sink, nil, Preferences{OnFriendRequest: true}, 16, zap.NewNop())

	d.Notify(Event{Type: RequestReceived, Recipient: "bob@local.example"})
	d.Notify(Event{Type: RequestAccepted, Recipient: "alice@local.example"})
	d.Notify(Event{Type: FriendRemoved, Recipient: "alice@local.example"})
	d.Stop()

	got := sink.got()
	require.Len(t, got, 1)
	assert.Equal(t, RequestReceived, got[0].Type)
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &recordSink{block: make(chan struct{})}
	d := NewDispatcher(sink, nil, allOn, 1, zap.New(core))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Notify(Event{Type: RequestReceived, Recipient: "bob@local.example"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	close(sink.block)
	d.Stop()

	assert.NotEmpty(t, logs.FilterMessage("notify queue full, dropping event").All())
	assert.Less(t, len(sink.got()), 10)
}

func TestDispatcher_DeliveryErrorLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &recordSink{err: errors.New("bus down")}
	d := NewDispatcher(sink, nil, allOn, 4, zap.New(core))
	d.Notify(Event{Type: RequestAccepted, Recipient: "alice@local.example"})
	d.Stop()

	assert.Len(t, logs.FilterMessage("notify delivery failed").All(), 1)
}

func TestDispatcher_FederationIgnoresPreferences(t *testing.T) {
	pub := &recordPublisher{}
	fed := NewNATSFederation(pub, "federation.friends.", "local.example")
	d := NewDispatcher(nil, fed, Preferences{}, 4, zap.NewNop())

	d.Federate(Event{Type: UserBlocked, Recipient: "bob@remote.example", Actor: "alice@local.example"}, "remote.example:8448")
	d.Notify(Event{Type: RequestReceived}) // no sink configured
	d.Stop()

	require.Len(t, pub.msgs, 1)
	m := pub.msgs[0]
	assert.Equal(t, "federation.friends.remote_example-p8448", m.Subject)
	assert.Equal(t, "user_blocked", m.Header.Get("Friends-Event"))
	assert.Equal(t, "local.example", m.Header.Get("Friends-Origin"))
	assert.Equal(t, "remote.example:8448", m.Header.Get("Friends-Destination"))

	var ev Event
	require.NoError(t, json.Unmarshal(m.Data, &ev))
	assert.Equal(t, "alice@local.example", ev.Actor)
}

func TestNATSFederation_SubjectPerDomain(t *testing.T) {
	fed := NewNATSFederation(&recordPublisher{}, "fed", "local.example")
	domains := []string{
		"example.8448", "example:8448",
		"host-p8448", "host:8448",
		"a-b.example", "a.b.example",
	}
	seen := map[string]string{}
	for _, d := range domains {
		subj := fed.Subject(d)
		assert.NotContains(t, strings.TrimPrefix(subj, "fed."), ".", d)
		if other, dup := seen[subj]; dup {
			t.Errorf("%q and %q share subject %q", d, other, subj)
		}
		seen[subj] = d
	}
	assert.Equal(t, "fed.a--b_example", fed.Subject("a-b.example"))
}

func TestDispatcher_StopIdempotentAndDropsAfter(t *testing.T) {
	sink := &recordSink{}
	d := NewDispatcher(sink, nil, allOn, 4, zap.NewNop())
	d.Stop()
	d.Stop()
	d.Notify(Event{Type: RequestReceived})
	assert.Empty(t, sink.got())
}

func TestPubSubSink_PublishesOnUserChannel(t *testing.T) {
	b, err := cache.Open(cache.CacheConfig{})
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	ch, cancel, err := b.PubSub.Subscribe(ctx, UserChannel("bob@local.example"))
	require.NoError(t, err)
	defer cancel()

	sink := NewPubSubSink(b.PubSub)
	require.NoError(t, sink.Deliver(ctx, Event{Type: RequestReceived, Recipient: "bob@local.example", Actor: "alice@local.example", RequestID: "r1"}))

	select {
	case msg := <-ch:
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, RequestReceived, ev.Type)
		assert.Equal(t, "r1", ev.RequestID)
	case <-time.After(time.Second):
		t.Fatal("no message on user channel")
	}
}
