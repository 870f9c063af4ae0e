package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"CapIot.relaysync/internal/logging"
	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/repository"
	"CapIot.relaysync/internal/transport"
)

var testTopics = transport.NewTopics("coop")

func newStore(t *testing.T) *repository.GormStore {
	t.Helper()
	store, err := repository.OpenGormStore(":memory:", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

type message struct {
	Topic   string
	Payload string
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []message
	err  error
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, message{Topic: topic, Payload: string(payload)})
	return nil
}

func (p *fakePublisher) messages() []message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message(nil), p.sent...)
}

type fakeArchive struct {
	readings []models.SensorReading
	err      error
}

func (a *fakeArchive) ArchiveReading(_ context.Context, r models.SensorReading) error {
	a.readings = append(a.readings, r)
	return a.err
}

type fakePresence struct {
	seen map[string]time.Time
	err  error
}

func (p *fakePresence) MarkSeen(_ context.Context, deviceID string, at time.Time) error {
	if p.err != nil {
		return p.err
	}
	if p.seen == nil {
		p.seen = map[string]time.Time{}
	}
	p.seen[deviceID] = at
	return nil
}

func (p *fakePresence) LastSeen(_ context.Context, deviceID string) (time.Time, bool, error) {
	if p.err != nil {
		return time.Time{}, false, p.err
	}
	at, ok := p.seen[deviceID]
	return at, ok, nil
}

var errBroker = errors.New("broker unavailable")
