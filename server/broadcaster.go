package main

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-guardian/server/alert"
)

// alertPoster is the subset of *poster.Poster used for broadcasts.
type alertPoster interface {
	PostAlert(a alert.Alert, channelID string) (string, error)
	NotifyUser(a alert.Alert) error
}

// guardianNotifier is the subset of *notify.Notifier used for broadcasts.
type guardianNotifier interface {
	Enabled() bool
	Notify(ctx context.Context, a alert.Alert) error
}

type broadcastLogger interface {
	Debug(message string, keyValuePairs ...interface{})
	Warn(message string, keyValuePairs ...interface{})
}

// guardianBroadcaster delivers incident alerts to the guardian channel, the
// configured SMS and email recipients, and the user's own DM with the bot.
// It is shared by every session.
type guardianBroadcaster struct {
	poster   alertPoster
	throttle *Throttle
	logger   broadcastLogger

	mu        sync.RWMutex
	channelID string
	notifier  guardianNotifier
}

func newGuardianBroadcaster(poster alertPoster, throttle *Throttle, logger broadcastLogger) *guardianBroadcaster {
	return &guardianBroadcaster{
		poster:   poster,
		throttle: throttle,
		logger:   logger,
	}
}

// configure swaps the delivery targets. Broadcasts in flight finish against the
// previous targets.
func (b *guardianBroadcaster) configure(channelID string, notifier guardianNotifier) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.channelID = channelID
	b.notifier = notifier
}

// Broadcast implements session.Broadcaster. A repeat of an alert already
// delivered for the same incident is dropped silently.
func (b *guardianBroadcaster) Broadcast(ctx context.Context, a alert.Alert) (string, error) {
	key := a.Key()
	if !b.throttle.Allow(key) {
		b.logger.Debug("Suppressed repeated broadcast", "incidentId", a.IncidentID, "kind", string(a.Kind))
		return "", nil
	}

	b.mu.RLock()
	channelID, notifier := b.channelID, b.notifier
	b.mu.RUnlock()

	var (
		postID    string
		failures  []error
		attempts  int
		delivered bool
	)

	if channelID != "" {
		attempts++
		id, err := b.poster.PostAlert(a, channelID)
		if err != nil {
			failures = append(failures, errors.Wrap(err, "failed to post to guardian channel"))
		} else {
			postID = id
			delivered = true
		}
	}

	if notifier != nil && notifier.Enabled() {
		attempts++
		if err := notifier.Notify(ctx, a); err != nil {
			failures = append(failures, errors.Wrap(err, "failed to notify guardians"))
		} else {
			delivered = true
		}
	}

	if attempts == 0 {
		b.logger.Warn("No guardian channel or notification recipients configured", "incidentId", a.IncidentID, "kind", string(a.Kind))
	}

	attempts++
	if err := b.poster.NotifyUser(a); err != nil {
		failures = append(failures, errors.Wrap(err, "failed to notify user"))
	}

	if !delivered {
		b.throttle.Forget(key)
	}

	if len(failures) > 0 {
		return postID, errors.Wrapf(failures[0], "%d of %d broadcast deliveries failed", len(failures), attempts)
	}
	return postID, nil
}

// NotifyUser implements session.Broadcaster. The alert goes to the user's DM
// with the bot and to no guardian.
func (b *guardianBroadcaster) NotifyUser(_ context.Context, a alert.Alert) error {
	if err := b.poster.NotifyUser(a); err != nil {
		return errors.Wrap(err, "failed to notify user")
	}
	return nil
}
