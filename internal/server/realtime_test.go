package server

import (
	"context"
	"testing"
	"time"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, ResumeChannel)
	defer cleanup()

	dispatcher.Publish(resumeChangeMessage(ResumeActionCreated, "resume-a", "", "resume-b"))

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventResumeChanged {
			t.Fatalf("expected event type %s, got %s", RealtimeEventResumeChanged, received.EventType)
		}
		if received.Action != ResumeActionCreated {
			t.Fatalf("expected action %s, got %s", ResumeActionCreated, received.Action)
		}
		if len(received.ResumeIDs) != 2 {
			t.Fatalf("expected 2 resume ids, got %v", received.ResumeIDs)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByChannel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resumeStream, cleanup := dispatcher.Subscribe(ctx, ResumeChannel)
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(ctx, "other")
	defer otherCleanup()

	dispatcher.Publish(RealtimeMessage{
		Channel:   "other",
		EventType: RealtimeEventResumeChanged,
		Timestamp: time.Now().UTC(),
	})

	select {
	case <-resumeStream:
		t.Fatal("did not expect realtime message for unrelated channel")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.Channel != "other" {
			t.Fatalf("expected channel other, received %s", msg.Channel)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message for subscribed channel")
	}
}

func TestRealtimeDispatcherUnsubscribesOnCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, ResumeChannel)
	defer cleanup()
	if dispatcher.SubscriberCount(ResumeChannel) != 1 {
		t.Fatalf("expected one subscriber")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.SubscriberCount(ResumeChannel) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscriber to be removed after cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRealtimeDispatcherDropsWhenBufferFull(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, ResumeChannel)
	defer cleanup()

	for i := 0; i < dispatcher.bufferSize+5; i++ {
		dispatcher.Publish(resumeChangeMessage(ResumeActionUpdated, "resume-a"))
	}
	if len(stream) != dispatcher.bufferSize {
		t.Fatalf("expected buffered messages to cap at %d, got %d", dispatcher.bufferSize, len(stream))
	}
}

func TestRealtimeDispatcherEmptyChannel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	stream, cleanup := dispatcher.Subscribe(context.Background(), "")
	defer cleanup()
	if _, ok := <-stream; ok {
		t.Fatal("expected closed stream for empty channel")
	}
}
