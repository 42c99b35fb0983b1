package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-messenger/internal/cache"
	"github.com/weiawesome/wes-messenger/internal/cipher"
	"github.com/weiawesome/wes-messenger/internal/domain"
	"github.com/weiawesome/wes-messenger/internal/presence"
	"github.com/weiawesome/wes-messenger/internal/repository"
	"github.com/weiawesome/wes-messenger/internal/testutil"
	"github.com/weiawesome/wes-messenger/internal/throttle"
	"github.com/weiawesome/wes-messenger/pkg/pubsub"
)

type fakeConn struct {
	id, userID string
	mu         sync.Mutex
	payloads   [][]byte
}

func (f *fakeConn) ID() string     { return f.id }
func (f *fakeConn) UserID() string { return f.userID }
func (f *fakeConn) Close()         {}

func (f *fakeConn) Deliver(p []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	return true
}

func (f *fakeConn) events(t *testing.T) []map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(f.payloads))
	for _, p := range f.payloads {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(p, &m))
		out = append(out, m)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*pubsub.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event *pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	db       *gorm.DB
	users    *Directory
	follows  *repository.GormFollowRepository
	messages *repository.GormMessageRepository
	registry *presence.Registry
	events   *recordingPublisher
	cipher   *cipher.Transform
	svc      *messageServiceImpl
	presence PresenceService

	mu  sync.Mutex
	now time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		db:       testutil.NewDB(t),
		registry: presence.NewRegistry(),
		events:   &recordingPublisher{},
		cipher:   cipher.New("test"),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.users = NewDirectory(repository.NewGormUserRepository(h.db), cache.NopUserCache{}, time.Minute)
	h.follows = repository.NewGormFollowRepository(h.db)
	h.messages = repository.NewGormMessageRepository(h.db)

	gate := throttle.NewGate(h.users, h.follows, h.messages, throttle.Config{}).WithClock(h.clock)
	h.svc = newMessageService(h.messages, h.users, gate, h.cipher, h.registry, h.events, h.clock)
	h.presence = NewPresenceService(h.users, h.follows, h.registry, h.events)
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) user(t *testing.T, name string, status domain.Status, withKeys bool) *domain.User {
	return testutil.CreateUser(t, h.db, name, status, withKeys)
}

func (h *harness) connect(userID string) *fakeConn {
	c := &fakeConn{id: "conn-" + userID, userID: userID}
	h.registry.Register(c)
	return c
}

func strPtr(s string) *string { return &s }
