package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventResumeChanged = "resume-change"
	realtimeEventHeartbeat     = "heartbeat"
	realtimeSourceBackend      = "portfolio-backend"

	// ResumeChannel carries ledger changes to every open resume page.
	ResumeChannel = "resumes"

	ResumeActionCreated = "created"
	ResumeActionUpdated = "updated"
	ResumeActionDeleted = "deleted"
)

type RealtimeMessage struct {
	Channel   string
	EventType string
	Action    string
	ResumeIDs []string
	Timestamp time.Time
}

// RealtimeDispatcher fans messages out to subscribers of a channel. Slow
// subscribers drop messages rather than blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, channel string) (<-chan RealtimeMessage, func()) {
	if channel == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(channel, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(channel, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.Channel == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.Channel]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many subscribers are attached to channel.
func (d *RealtimeDispatcher) SubscriberCount(channel string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[channel])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(channel string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[channel]; !ok {
		d.subscribers[channel] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[channel][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(channel string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[channel]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, channel)
		}
	}
	d.mu.Unlock()
}

func resumeChangeMessage(action string, ids ...string) RealtimeMessage {
	resumeIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			resumeIDs = append(resumeIDs, id)
		}
	}
	return RealtimeMessage{
		Channel:   ResumeChannel,
		EventType: RealtimeEventResumeChanged,
		Action:    action,
		ResumeIDs: resumeIDs,
		Timestamp: time.Now().UTC(),
	}
}
