package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chriskuech/supplyside-sub001/internal/events"
	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/repository"
	"github.com/chriskuech/supplyside-sub001/internal/repository/repotest"
)

func created(tenant, id string) events.ResourceCreated {
	return events.ResourceCreated{Resource: &model.Resource{ID: id, TenantID: tenant}}
}

func TestHub_PublishForwardsAndBroadcasts(t *testing.T) {
	rec := &events.Recorder{}
	hub := NewHub(rec)

	client := hub.subscribe("t1", nil)
	defer hub.unsubscribe(client)

	if err := hub.Publish(context.Background(), events.TopicResourceCreated, created("t1", "res-1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case evt := <-client.ch:
		if evt.Topic != events.TopicResourceCreated {
			t.Fatalf("topic = %q, want %q", evt.Topic, events.TopicResourceCreated)
		}
		if !strings.Contains(string(evt.Data), `"id":"res-1"`) {
			t.Fatalf("data = %s, want the resource payload", evt.Data)
		}
		if evt.ID != 1 {
			t.Fatalf("id = %d, want 1", evt.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	if got := rec.Topics(); len(got) != 1 || got[0] != events.TopicResourceCreated {
		t.Fatalf("forwarded topics = %v", got)
	}
}

func TestHub_TenantIsolation(t *testing.T) {
	hub := NewHub(nil)
	client := hub.subscribe("t1", nil)
	defer hub.unsubscribe(client)

	_ = hub.Publish(context.Background(), events.TopicResourceDeleted, events.ResourceDeleted{TenantID: "t2", ResourceID: "res-9"})
	_ = hub.Publish(context.Background(), events.TopicTemplateApplied, events.TemplateApplied{TenantID: "t1"})

	select {
	case evt := <-client.ch:
		if evt.Topic != events.TopicTemplateApplied {
			t.Fatalf("got %q, want only the t1 event", evt.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	select {
	case evt := <-client.ch:
		t.Fatalf("unexpected event: topic=%q tenant=%q", evt.Topic, evt.Tenant)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_TopicFiltering(t *testing.T) {
	hub := NewHub(nil)
	client := hub.subscribe("t1", []string{"records.resource.*"})
	defer hub.unsubscribe(client)

	_ = hub.Publish(context.Background(), events.TopicTemplateApplied, events.TemplateApplied{TenantID: "t1"})
	_ = hub.Publish(context.Background(), events.TopicResourceUpdated, events.ResourceUpdated{Resource: &model.Resource{TenantID: "t1"}})

	select {
	case evt := <-client.ch:
		if evt.Topic != events.TopicResourceUpdated {
			t.Fatalf("topic = %q, want %q", evt.Topic, events.TopicResourceUpdated)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHub_EventsSince(t *testing.T) {
	hub := NewHub(nil)
	for _, id := range []string{"res-1", "res-2", "res-3"} {
		_ = hub.Publish(context.Background(), events.TopicResourceCreated, created("t1", id))
	}

	got := hub.eventsSince(1)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].ID != 2 || got[1].ID != 3 {
		t.Fatalf("ids = %d,%d, want 2,3", got[0].ID, got[1].ID)
	}
	if len(hub.eventsSince(3)) != 0 {
		t.Fatal("expected no events after the newest id")
	}
}

func TestMatchTopicPattern(t *testing.T) {
	for _, tc := range []struct {
		pattern, topic string
		want           bool
	}{
		{"records.resource.created", "records.resource.created", true},
		{"records.resource.*", "records.resource.updated", true},
		{"records.*", "records.resource.updated", false},
		{"records.>", "records.resource.updated", true},
		{"records.>", "records", false},
		{"records.template.*", "records.resource.created", false},
	} {
		if got := matchTopicPattern(tc.pattern, tc.topic); got != tc.want {
			t.Errorf("matchTopicPattern(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
		}
	}
}

func TestEventStream(t *testing.T) {
	env := repotest.New(t)
	hub := NewHub(env.Events)
	repo := repository.New(env.Store, hub, env.Blobs)
	ts := httptest.NewServer(New(repo, env.Catalog, hub).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+base+"/events/stream?topics=records.resource.created", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	if _, err := repo.Create(env.Ctx, env.Scope, model.ResourceDraft{Type: model.ResourceTypePurchase}); err != nil {
		t.Fatalf("create: %v", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) != 3 {
		t.Fatalf("got lines %q, want one id/event/data frame", lines)
	}
	if lines[1] != "event:"+events.TopicResourceCreated {
		t.Fatalf("event line = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "data:{") {
		t.Fatalf("data line = %q", lines[2])
	}
	if got := env.Events.Topics(); len(got) == 0 || got[0] != events.TopicResourceCreated {
		t.Fatalf("forwarded topics = %v", got)
	}
}

func TestHub_ReplayIsBounded(t *testing.T) {
	hub := NewHub(nil)
	for range replayLimit + 5 {
		_ = hub.Publish(context.Background(), events.TopicResourceCreated, created("t1", "res"))
	}
	got := hub.eventsSince(0)
	if len(got) != replayLimit {
		t.Fatalf("retained %d events, want %d", len(got), replayLimit)
	}
	if got[0].ID != 6 {
		t.Fatalf("oldest retained id = %d, want 6", got[0].ID)
	}
}

func TestEventStream_ReplaysFromLastEventID(t *testing.T) {
	env := repotest.New(t)
	hub := NewHub(nil)
	ts := httptest.NewServer(New(env.Repo, env.Catalog, hub).Handler())
	defer ts.Close()

	ctx := context.Background()
	_ = hub.Publish(ctx, events.TopicResourceCreated, created(repotest.Tenant, "res-1"))
	_ = hub.Publish(ctx, events.TopicResourceCreated, created("t2", "res-other"))
	_ = hub.Publish(ctx, events.TopicResourceCreated, created(repotest.Tenant, "res-2"))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+base+"/events/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "id:") {
			continue
		}
		if line != "id:3" {
			t.Fatalf("first replayed frame %q, want id:3", line)
		}
		return
	}
	t.Fatalf("stream ended: %v", scanner.Err())
}
