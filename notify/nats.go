package notify

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used for federation.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSFederation hands events for remote domains to the federation transport
// over NATS, one subject per domain: <prefix>.<domain>.
type NATSFederation struct {
	pub    Publisher
	prefix string
	origin string
}

// NewNATSFederation creates a federator publishing under prefix on behalf of
// the local server origin.
func NewNATSFederation(pub Publisher, prefix, origin string) *NATSFederation {
	return &NATSFederation{pub: pub, prefix: strings.TrimSuffix(prefix, "."), origin: origin}
}

// subjectToken encodes a domain as one NATS token. Dots become '_', the
// port colon becomes "-p" and a literal '-' is doubled, so distinct domains
// never share a subject.
var subjectToken = strings.NewReplacer("-", "--", ".", "_", ":", "-p")

// Subject returns the subject for domain.
func (f *NATSFederation) Subject(domain string) string {
	return f.prefix + "." + subjectToken.Replace(domain)
}

func (f *NATSFederation) Federate(_ context.Context, ev Event, domain string) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	msg := nats.NewMsg(f.Subject(domain))
	msg.Header.Set("Friends-Event", string(ev.Type))
	msg.Header.Set("Friends-Origin", f.origin)
	msg.Header.Set("Friends-Destination", domain)
	msg.Data = data
	return f.pub.PublishMsg(msg)
}

// Connect dials NATS with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("socialgraph-federation"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
	)
}
