package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-messenger/internal/cipher"
	"github.com/weiawesome/wes-messenger/internal/domain"
	"github.com/weiawesome/wes-messenger/internal/scheduler"
	"github.com/weiawesome/wes-messenger/internal/testutil"
	apperrors "github.com/weiawesome/wes-messenger/pkg/errors"
	"github.com/weiawesome/wes-messenger/pkg/pubsub"
)

func TestSendStoresCiphertextAndPushesText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.StatusOnline, true)
	bob := h.user(t, "bob", domain.StatusOnline, true)
	conn := h.connect(bob.ID)

	view, err := h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{ReceiverID: bob.ID, Text: strPtr("hi")})
	require.NoError(t, err)
	assert.Equal(t, "hi", *view.Text)
	assert.True(t, view.Sent)
	assert.Equal(t, domain.DeliverySent, view.Status)
	require.NotNil(t, view.SentAt)

	events := conn.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, "message", events[0]["type"])
	assert.Equal(t, alice.ID, events[0]["senderId"])
	assert.Equal(t, "hi", events[0]["text"])
	assert.NotContains(t, events[0], "ciphertext")

	stored, err := h.messages.GetByID(ctx, view.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "hi", *stored.Ciphertext)
	assert.NotEqual(t, "hi", *stored.SenderCiphertext)

	plain, err := h.cipher.Decrypt(*stored.Ciphertext, cipher.KeyMaterial{PublicKey: bob.PublicKey, PrivateKey: bob.PrivateKey})
	require.NoError(t, err)
	assert.Equal(t, "hi", plain)

	assert.Equal(t, []string{pubsub.EventMessageDelivered}, h.events.types())
}

func TestDeliverPushesWithoutTextWhenUndecryptable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.StatusOnline, true)
	bob := h.user(t, "bob", domain.StatusOnline, true)
	conn := h.connect(bob.ID)

	msg := &domain.Message{
		ID:          uuid.New().String(),
		SenderID:    alice.ID,
		RecipientID: bob.ID,
		Ciphertext:  strPtr("garbage"),
		Emoji:       strPtr("👋"),
	}
	assert.True(t, h.svc.Deliver(ctx, msg))

	events := conn.events(t)
	require.Len(t, events, 1)
	assert.NotContains(t, events[0], "text")
	assert.Equal(t, "👋", events[0]["emoji"])
}

func TestSendToOfflineRecipientIsStored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.StatusOnline, true)
	bob := h.user(t, "bob", domain.StatusOnline, true)

	_, err := h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{ReceiverID: bob.ID, Text: strPtr("hi")})
	require.NoError(t, err)

	got, err := h.svc.Conversation(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", *got[0].Text)

	inbox, err := h.svc.Delivered(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

func TestSendScheduledStaysHiddenFromRecipient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.StatusOnline, true)
	bob := h.user(t, "bob", domain.StatusOnline, true)
	conn := h.connect(bob.ID)

	at := h.clock().Add(time.Hour).Format(time.RFC3339)
	view, err := h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{
		ReceiverID:   bob.ID,
		Text:         strPtr("later"),
		ScheduleTime: &at,
	})
	require.NoError(t, err)
	assert.False(t, view.Sent)
	require.NotNil(t, view.ScheduledAt)
	assert.Nil(t, view.SentAt)
	assert.Empty(t, conn.events(t))
	assert.Equal(t, []string{pubsub.EventMessageScheduled}, h.events.types())

	forBob, err := h.svc.Conversation(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, forBob)

	forAlice, err := h.svc.Conversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, forAlice, 1)
	assert.Equal(t, "later", *forAlice[0].Text)

	_, err = h.svc.Get(ctx, bob.ID, view.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.StatusOnline, true)
	bob := h.user(t, "bob", domain.StatusOnline, true)
	past := h.clock().Add(-time.Minute).Format(time.RFC3339)
	bad := "tomorrow"

	tests := map[string]struct {
		req  domain.SendMessageRequest
		code apperrors.Code
	}{
		"invalid receiver": {
			req:  domain.SendMessageRequest{ReceiverID: "not-a-uuid", Text: strPtr("hi")},
			code: apperrors.CodeInvalidArgument,
		},
		"no content": {
			req:  domain.SendMessageRequest{ReceiverID: bob.ID, Text: strPtr("")},
			code: apperrors.CodeInvalidArgument,
		},
		"schedule in the past": {
			req:  domain.SendMessageRequest{ReceiverID: bob.ID, Text: strPtr("hi"), ScheduleTime: &past},
			code: apperrors.CodeInvalidArgument,
		},
		"malformed schedule": {
			req:  domain.SendMessageRequest{ReceiverID: bob.ID, Text: strPtr("hi"), ScheduleTime: &bad},
			code: apperrors.CodeInvalidArgument,
		},
		"unknown recipient": {
			req:  domain.SendMessageRequest{ReceiverID: uuid.New().String(), Text: strPtr("hi")},
			code: apperrors.CodeNotFound,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := tt.req
			_, err := h.svc.Send(ctx, alice.ID, &req)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}
}

func TestSendThrottlesNonFriendsOfUnavailableRecipient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.StatusOnline, true)
	bob := h.user(t, "bob", domain.StatusBusy, true)
	req := func() *domain.SendMessageRequest {
		return &domain.SendMessageRequest{ReceiverID: bob.ID, Text: strPtr("ping")}
	}

	_, err := h.svc.Send(ctx, alice.ID, req())
	require.NoError(t, err)

	_, err = h.svc.Send(ctx, alice.ID, req())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeRateLimited, apperrors.CodeOf(err))

	h.advance(25 * time.Hour)
	_, err = h.svc.Send(ctx, alice.ID, req())
	require.NoError(t, err)

	testutil.MakeFriends(t, h.db, alice.ID, bob.ID)
	_, err = h.svc.Send(ctx, alice.ID, req())
	assert.NoError(t, err)
}

func TestSendRequiresRecipientKeyForText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.StatusOnline, true)
	bob := h.user(t, "bob", domain.StatusOnline, false)

	_, err := h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{ReceiverID: bob.ID, Text: strPtr("hi")})
	assert.Equal(t, apperrors.CodeMissingKey, apperrors.CodeOf(err))

	view, err := h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{ReceiverID: bob.ID, Emoji: strPtr("👋")})
	require.NoError(t, err)
	assert.Nil(t, view.Text)
	assert.Equal(t, "👋", *view.Emoji)
}

func TestMissingKeyIsReportedBeforeThrottle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.StatusOnline, true)
	bob := h.user(t, "bob", domain.StatusOffline, false)

	_, err := h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{ReceiverID: bob.ID, Emoji: strPtr("👋")})
	require.NoError(t, err)

	_, err = h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{ReceiverID: bob.ID, Emoji: strPtr("👋")})
	assert.Equal(t, apperrors.CodeRateLimited, apperrors.CodeOf(err))

	_, err = h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{ReceiverID: bob.ID, Text: strPtr("hi")})
	assert.Equal(t, apperrors.CodeMissingKey, apperrors.CodeOf(err))
}

func TestConcurrentSendsRespectThrottle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.StatusOnline, true)
	bob := h.user(t, "bob", domain.StatusOffline, true)

	const senders = 20
	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		limited  atomic.Int32
	)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{ReceiverID: bob.ID, Emoji: strPtr("👋")})
			switch {
			case err == nil:
				accepted.Add(1)
			case apperrors.Is(err, apperrors.CodeRateLimited):
				limited.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, accepted.Load())
	assert.EqualValues(t, senders-1, limited.Load())

	stored, err := h.messages.CountSince(ctx, alice.ID, bob.ID, h.clock().Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored)

	h.svc.pairs.mu.Lock()
	assert.Empty(t, h.svc.pairs.locks)
	h.svc.pairs.mu.Unlock()
}

func TestScheduledMessageReleasedOnceAcrossSweeps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.StatusOnline, true)
	bob := h.user(t, "bob", domain.StatusOnline, true)
	conn := h.connect(bob.ID)

	at := h.clock().Add(2 * time.Minute).Format(time.RFC3339)
	sent, err := h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{
		ReceiverID:   bob.ID,
		Text:         strPtr("later"),
		ScheduleTime: &at,
	})
	require.NoError(t, err)
	assert.Empty(t, conn.events(t))

	h.advance(3 * time.Minute)

	var (
		wg      sync.WaitGroup
		results [2]scheduler.Result
		errs    [2]error
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = scheduler.New(h.messages, h.svc, time.Minute, 10).Sweep(ctx, h.clock())
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, results[0].Sent+results[1].Sent)

	events := conn.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, sent.ID, events[0]["messageId"])
	assert.Equal(t, "later", events[0]["text"])

	inbox, err := h.svc.Delivered(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.NotNil(t, inbox[0].Text)
	assert.Equal(t, "later", *inbox[0].Text)
	assert.True(t, inbox[0].Sent)
}

func TestEditBySenderKeepsRevisions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.StatusOnline, true)
	bob := h.user(t, "bob", domain.StatusOnline, true)
	carol := h.user(t, "carol", domain.StatusOnline, true)

	sent, err := h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{ReceiverID: bob.ID, Text: strPtr("helo")})
	require.NoError(t, err)

	_, err = h.svc.Send(ctx, bob.ID, &domain.SendMessageRequest{ReceiverID: alice.ID, MessageID: sent.ID, Text: strPtr("hijack")})
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))

	_, err = h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{ReceiverID: carol.ID, MessageID: sent.ID, Text: strPtr("moved")})
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))

	h.advance(time.Minute)
	edited, err := h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{ReceiverID: bob.ID, MessageID: sent.ID, Text: strPtr("hello")})
	require.NoError(t, err)
	assert.Equal(t, sent.ID, edited.ID)
	assert.Equal(t, "hello", *edited.Text)
	require.NotNil(t, edited.EditedAt)

	forBob, err := h.svc.Get(ctx, bob.ID, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", *forBob.Text)

	for _, viewer := range []string{alice.ID, bob.ID} {
		revs, err := h.svc.Revisions(ctx, viewer, sent.ID)
		require.NoError(t, err)
		require.Len(t, revs, 1)
		assert.Equal(t, "helo", *revs[0].Text)
	}
}

func TestMarkReadOnlyByRecipient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.StatusOnline, true)
	bob := h.user(t, "bob", domain.StatusOnline, true)

	sent, err := h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{ReceiverID: bob.ID, Text: strPtr("hi")})
	require.NoError(t, err)

	n, err := h.svc.MarkRead(ctx, alice.ID, []string{sent.ID})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = h.svc.MarkRead(ctx, bob.ID, []string{sent.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = h.svc.MarkDelivered(ctx, bob.ID, []string{sent.ID})
	require.NoError(t, err)
	assert.Zero(t, n, "status never moves backwards")

	got, err := h.svc.Get(ctx, alice.ID, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryRead, got.Status)

	_, err = h.svc.MarkRead(ctx, bob.ID, nil)
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
	_, err = h.svc.MarkRead(ctx, bob.ID, []string{"x"})
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

func TestDeleteAndReact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.StatusOnline, true)
	bob := h.user(t, "bob", domain.StatusOnline, true)
	carol := h.user(t, "carol", domain.StatusOnline, true)

	sent, err := h.svc.Send(ctx, alice.ID, &domain.SendMessageRequest{ReceiverID: bob.ID, Text: strPtr("hi")})
	require.NoError(t, err)

	r, err := h.svc.React(ctx, bob.ID, sent.ID, "❤️")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, r.UserID)

	_, err = h.svc.React(ctx, carol.ID, sent.ID, "👀")
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))

	_, err = h.svc.Get(ctx, carol.ID, sent.ID)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))

	got, err := h.svc.Get(ctx, alice.ID, sent.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 1)

	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(h.svc.Delete(ctx, carol.ID, sent.ID)))
	require.NoError(t, h.svc.Delete(ctx, bob.ID, sent.ID))

	_, err = h.svc.Get(ctx, alice.ID, sent.ID)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestDeliverWithoutConnection(t *testing.T) {
	h := newHarness(t)
	msg := &domain.Message{ID: uuid.New().String(), SenderID: "a", RecipientID: "b", Emoji: strPtr("x")}

	assert.False(t, h.svc.Deliver(context.Background(), msg))
	assert.Equal(t, []string{pubsub.EventMessageDelivered}, h.events.types())
}
