// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestLocalBusDeliversToSubscriber(t *testing.T) {
	b := NewLocalBus()
	ch, cancel := b.Subscribe(context.Background())
	defer cancel()

	if err := b.Publish(context.Background(), Event{Type: EventJobProgress, JobID: "j1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case e := <-ch:
		if e.JobID != "j1" {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestLocalBusCancelClosesChannel(t *testing.T) {
	b := NewLocalBus()
	ch, cancel := b.Subscribe(context.Background())
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestLocalBusFansOutToMultipleSubscribers(t *testing.T) {
	b := NewLocalBus()
	ch1, cancel1 := b.Subscribe(context.Background())
	defer cancel1()
	ch2, cancel2 := b.Subscribe(context.Background())
	defer cancel2()

	if err := b.Publish(context.Background(), Event{Type: EventProviderUnavailable}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}
}

type recordingPublisher struct {
	events []Event
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return nil
}

func TestMultiBusPublishesToAllTargets(t *testing.T) {
	local := NewLocalBus()
	recorder := &recordingPublisher{}
	m := NewMultiBus(local, local, recorder)

	ch, cancel := local.Subscribe(context.Background())
	defer cancel()

	if err := m.Publish(context.Background(), Event{Type: EventJobStatusChanged}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected local subscriber to receive event")
	}

	if len(recorder.events) != 1 {
		t.Fatalf("expected recorder to receive 1 event, got %d", len(recorder.events))
	}
}

func TestEventMarshalRoundTrip(t *testing.T) {
	e := Event{Type: EventJobProgress, JobID: "abc", FilesIndexed: 3, FilesTotal: 10}
	data, err := marshalEvent(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := unmarshalEvent(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.JobID != e.JobID || got.FilesIndexed != e.FilesIndexed {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, e)
	}
}
