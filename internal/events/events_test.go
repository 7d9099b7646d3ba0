package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/chriskuech/supplyside-sub001/internal/model"
)

var (
	_ Publisher  = (*NoopPublisher)(nil)
	_ Publisher  = (*Recorder)(nil)
	_ Publisher  = (*NATSPublisher)(nil)
	_ Subscriber = (*NATSSubscriber)(nil)
)

func TestTenantOf(t *testing.T) {
	for _, tc := range []struct {
		name  string
		event any
		want  string
	}{
		{"Created", ResourceCreated{Resource: &model.Resource{TenantID: "t1"}}, "t1"},
		{"CreatedWithoutResource", ResourceCreated{}, ""},
		{"Updated", ResourceUpdated{Resource: &model.Resource{TenantID: "t2"}}, "t2"},
		{"Deleted", ResourceDeleted{TenantID: "t3", ResourceID: "res-1"}, "t3"},
		{"TemplateApplied", TemplateApplied{TenantID: "t4"}, "t4"},
		{"Other", map[string]string{"tenant_id": "t5"}, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := TenantOf(tc.event); got != tc.want {
				t.Fatalf("TenantOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()
	_ = rec.Publish(ctx, TopicResourceCreated, ResourceCreated{})
	_ = rec.Publish(ctx, TopicResourceDeleted, ResourceDeleted{ResourceID: "res-1"})

	got := rec.Topics()
	if len(got) != 2 || got[0] != TopicResourceCreated || got[1] != TopicResourceDeleted {
		t.Fatalf("Topics() = %v", got)
	}
	if del, ok := rec.Events()[1].Event.(ResourceDeleted); !ok || del.ResourceID != "res-1" {
		t.Fatalf("second event = %#v", rec.Events()[1].Event)
	}
	if err := (&NoopPublisher{}).Publish(ctx, TopicAll, nil); err != nil {
		t.Fatalf("noop publish: %v", err)
	}
}

// listen subscribes a plain NATS connection to subject.
func listen(t *testing.T, url, subject string) chan *nats.Msg {
	t.Helper()
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting listener: %v", err)
	}
	t.Cleanup(nc.Close)
	ch := make(chan *nats.Msg, 8)
	if _, err := nc.ChanSubscribe(subject, ch); err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	return ch
}

func receive(t *testing.T, ch chan *nats.Msg) *nats.Msg {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestNATSPublisher_PublishesJSONWithTenantHeader(t *testing.T) {
	url := startTestNATS(t)
	ch := listen(t, url, TopicResourceCreated)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	event := ResourceCreated{Resource: &model.Resource{ID: "res-pub1", TenantID: "t1", Type: model.ResourceTypeVendor, Key: 3}}
	if err := pub.Publish(context.Background(), TopicResourceCreated, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg := receive(t, ch)
	if got := msg.Header.Get(HeaderTenant); got != "t1" {
		t.Errorf("tenant header = %q, want t1", got)
	}
	var got ResourceCreated
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Resource.ID != "res-pub1" || got.Resource.Key != 3 {
		t.Errorf("got resource %+v", got.Resource)
	}
}

func TestNATSPublisher_EveryTopicUnderTopicAll(t *testing.T) {
	url := startTestNATS(t)
	ch := listen(t, url, TopicAll)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	topics := map[string]any{
		TopicResourceCreated: ResourceCreated{Resource: &model.Resource{ID: "res-1"}},
		TopicResourceUpdated: ResourceUpdated{Resource: &model.Resource{ID: "res-1"}, Changes: map[string]any{"Name": "Acme"}},
		TopicResourceDeleted: ResourceDeleted{ResourceID: "res-2"},
		TopicTemplateApplied: TemplateApplied{TenantID: "tn-1", FieldsCreated: 12},
	}
	for topic, event := range topics {
		if err := pub.Publish(context.Background(), topic, event); err != nil {
			t.Fatalf("Publish(%s): %v", topic, err)
		}
	}

	seen := map[string]bool{}
	for range len(topics) {
		seen[receive(t, ch).Subject] = true
	}
	for topic := range topics {
		if !seen[topic] {
			t.Errorf("no message on %s", topic)
		}
	}
}

func TestNATSPublisher_PublishAfterClose(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pub.Publish(context.Background(), TopicResourceCreated, ResourceCreated{}); err == nil {
		t.Error("expected error publishing after close")
	}
}
