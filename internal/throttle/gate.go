// Package throttle decides whether a sender may message a recipient who is
// busy or offline.
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/wes-messenger/internal/domain"
)

// ReasonRecipientUnavailable is the denial reason returned to clients.
const ReasonRecipientUnavailable = "rate limited while recipient busy/offline"

const (
	DefaultWindow = 24 * time.Hour
	DefaultLimit  = 1
)

type StatusLookup interface {
	Status(ctx context.Context, userID string) (domain.Status, error)
}

type FriendChecker interface {
	IsFriend(ctx context.Context, a, b string) (bool, error)
}

type MessageCounter interface {
	CountSince(ctx context.Context, senderID, recipientID string, since time.Time) (int64, error)
}

type Config struct {
	Window time.Duration
	Limit  int64
}

// Decision is the outcome of a throttle check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Gate caps messages from non-friends to recipients who are not online at
// Limit per trailing Window.
type Gate struct {
	statuses StatusLookup
	friends  FriendChecker
	counter  MessageCounter
	window   time.Duration
	limit    int64
	now      func() time.Time
}

func NewGate(statuses StatusLookup, friends FriendChecker, counter MessageCounter, cfg Config) *Gate {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &Gate{
		statuses: statuses,
		friends:  friends,
		counter:  counter,
		window:   cfg.Window,
		limit:    cfg.Limit,
		now:      time.Now,
	}
}

// WithClock replaces the clock used to compute the window.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// MayDeliver evaluates the rule for one new message from senderID to
// recipientID. It must run before the message is stored.
func (g *Gate) MayDeliver(ctx context.Context, senderID, recipientID string) (Decision, error) {
	if senderID == recipientID {
		return Decision{Allowed: true}, nil
	}

	status, err := g.statuses.Status(ctx, recipientID)
	if err != nil {
		return Decision{}, fmt.Errorf("throttle: recipient status: %w", err)
	}
	if status.Available() {
		return Decision{Allowed: true}, nil
	}

	friends, err := g.friends.IsFriend(ctx, senderID, recipientID)
	if err != nil {
		return Decision{}, fmt.Errorf("throttle: friendship: %w", err)
	}
	if friends {
		return Decision{Allowed: true}, nil
	}

	count, err := g.counter.CountSince(ctx, senderID, recipientID, g.now().Add(-g.window))
	if err != nil {
		return Decision{}, fmt.Errorf("throttle: count window: %w", err)
	}
	if count >= g.limit {
		return Decision{Allowed: false, Reason: ReasonRecipientUnavailable}, nil
	}
	return Decision{Allowed: true}, nil
}
