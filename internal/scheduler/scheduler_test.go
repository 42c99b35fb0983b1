package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-messenger/internal/domain"
	"github.com/weiawesome/wes-messenger/internal/repository"
	"github.com/weiawesome/wes-messenger/internal/testutil"
)

type countingDeliverer struct {
	mu    sync.Mutex
	count map[string]int
	panic string
}

func newCountingDeliverer() *countingDeliverer {
	return &countingDeliverer{count: make(map[string]int)}
}

func (d *countingDeliverer) Deliver(_ context.Context, msg *domain.Message) bool {
	if msg.ID == d.panic {
		panic("boom")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count[msg.ID]++
	return true
}

func (d *countingDeliverer) times(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count[id]
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func schedule(t *testing.T, repo *repository.GormMessageRepository, from, to string, at time.Time) *domain.Message {
	t.Helper()
	emoji := "⏰"
	msg := &domain.Message{
		SenderID:    from,
		RecipientID: to,
		Emoji:       &emoji,
		ScheduledAt: &at,
		CreatedAt:   base,
	}
	require.NoError(t, repo.Create(context.Background(), msg))
	return msg
}

func TestSweepSendsOnlyDueMessages(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewGormMessageRepository(db)
	alice := testutil.CreateUser(t, db, "alice", domain.StatusOnline, false)
	bob := testutil.CreateUser(t, db, "bob", domain.StatusOnline, false)
	due := schedule(t, repo, alice.ID, bob.ID, base.Add(time.Minute))
	later := schedule(t, repo, alice.ID, bob.ID, base.Add(time.Hour))

	d := newCountingDeliverer()
	s := New(repo, d, time.Minute, 10)

	res, err := s.Sweep(context.Background(), base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, Result{Due: 1, Sent: 1}, res)
	assert.Equal(t, 1, d.times(due.ID))
	assert.Zero(t, d.times(later.ID))

	got, err := repo.GetByID(context.Background(), due.ID)
	require.NoError(t, err)
	assert.True(t, got.Sent)
	require.NotNil(t, got.SentAt)

	res, err = s.Sweep(context.Background(), base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, res.Due)
}

func TestConcurrentSweepsDeliverOnce(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewGormMessageRepository(db)
	alice := testutil.CreateUser(t, db, "alice", domain.StatusOnline, false)
	bob := testutil.CreateUser(t, db, "bob", domain.StatusOnline, false)

	var ids []string
	for i := 0; i < 20; i++ {
		ids = append(ids, schedule(t, repo, alice.ID, bob.ID, base.Add(time.Duration(i)*time.Second)).ID)
	}

	d := newCountingDeliverer()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := New(repo, d, time.Minute, 5)
			_, err := s.Sweep(context.Background(), base.Add(time.Hour))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, 1, d.times(id), "message %s", id)
	}
}

func TestSweepIsolatesFailures(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewGormMessageRepository(db)
	alice := testutil.CreateUser(t, db, "alice", domain.StatusOnline, false)
	bob := testutil.CreateUser(t, db, "bob", domain.StatusOnline, false)
	bad := schedule(t, repo, alice.ID, bob.ID, base)
	good := schedule(t, repo, alice.ID, bob.ID, base.Add(time.Second))

	d := newCountingDeliverer()
	d.panic = bad.ID
	s := New(repo, d, time.Minute, 10)

	res, err := s.Sweep(context.Background(), base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, d.times(good.ID))
}

type failingStore struct{}

func (failingStore) FindDueScheduled(context.Context, time.Time, int) ([]*domain.Message, error) {
	return nil, errors.New("db down")
}

func (failingStore) MarkSent(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

func TestSweepReportsStoreError(t *testing.T) {
	s := New(failingStore{}, newCountingDeliverer(), time.Minute, 10)
	_, err := s.Sweep(context.Background(), base)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewGormMessageRepository(db)
	alice := testutil.CreateUser(t, db, "alice", domain.StatusOnline, false)
	bob := testutil.CreateUser(t, db, "bob", domain.StatusOnline, false)
	msg := schedule(t, repo, alice.ID, bob.ID, time.Now().Add(-time.Minute))

	d := newCountingDeliverer()
	s := New(repo, d, time.Hour, 10)
	s.Start(context.Background())

	require.Eventually(t, func() bool { return d.times(msg.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
