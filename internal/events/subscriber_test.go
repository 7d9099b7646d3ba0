package events

import (
	"context"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNATSSubscriber_ReceivesWildcardTopics(t *testing.T) {
	url := startTestNATS(t)
	disconnects := make(chan error, 1)
	sub, err := NewNATSSubscriber(url, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		select {
		case disconnects <- err:
		default:
		}
	}))
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("records.resource.*")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()
	ctx := context.Background()
	_ = pub.Publish(ctx, TopicTemplateApplied, TemplateApplied{TenantID: "t1"})
	_ = pub.Publish(ctx, TopicResourceDeleted, ResourceDeleted{TenantID: "t1", ResourceID: "res-7"})

	select {
	case payload := <-ch:
		want := `{"tenant_id":"t1","resource_id":"res-7","type":""}`
		if string(payload) != want {
			t.Fatalf("payload = %s, want %s", payload, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	select {
	case err := <-disconnects:
		t.Fatalf("unexpected disconnect: %v", err)
	default:
	}
}

func TestNATSSubscriber_CancelClosesChannel(t *testing.T) {
	url := startTestNATS(t)
	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_CancelDuringMessages(t *testing.T) {
	url := startTestNATS(t)
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()
	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			_ = pub.Publish(context.Background(), TopicResourceCreated, ResourceCreated{})
		}
	}()
	cancel()
	<-done

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

// chanSubscriber hands out one preloaded channel.
type chanSubscriber struct {
	ch       chan []byte
	err      error
	canceled bool
}

func (c *chanSubscriber) Subscribe(string) (<-chan []byte, func(), error) {
	if c.err != nil {
		return nil, nil, c.err
	}
	return c.ch, func() { c.canceled = true }, nil
}

func (c *chanSubscriber) Close() error { return nil }

func TestFollow_StopsWhenSubscriptionCloses(t *testing.T) {
	sub := &chanSubscriber{ch: make(chan []byte, 2)}
	sub.ch <- []byte("a")
	sub.ch <- []byte("b")
	close(sub.ch)

	var got []string
	if err := Follow(context.Background(), sub, TopicAll, func(p []byte) { got = append(got, string(p)) }); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v, want [a b]", got)
	}
	if !sub.canceled {
		t.Fatal("expected the subscription to be canceled")
	}
}

func TestFollow_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sub := &chanSubscriber{ch: make(chan []byte)}
	if err := Follow(ctx, sub, TopicAll, func([]byte) { t.Fatal("unexpected payload") }); err != nil {
		t.Fatalf("Follow: %v", err)
	}
}

func TestFollow_SubscribeError(t *testing.T) {
	boom := errors.New("boom")
	err := Follow(context.Background(), &chanSubscriber{err: boom}, TopicAll, func([]byte) {})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestFollow_OverNATS(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()
	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, sub, "records.resource.*", func(p []byte) {
			select {
			case got <- string(p):
			default:
			}
			cancel()
		})
	}()

	// Retry until the subscription is registered.
	deadline := time.After(3 * time.Second)
	for {
		if err := pub.Publish(ctx, TopicResourceDeleted, ResourceDeleted{TenantID: "t1", ResourceID: "res-1"}); err != nil {
			t.Fatalf("publishing: %v", err)
		}
		select {
		case payload := <-got:
			if payload == "" {
				t.Fatal("empty payload")
			}
			if err := <-done; err != nil {
				t.Fatalf("Follow: %v", err)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}
