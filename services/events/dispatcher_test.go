package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	// Arrange
	dispatcher := NewDispatcher(getLogger())
	first, cancelFirst := dispatcher.Subscribe(4)
	second, cancelSecond := dispatcher.Subscribe(4)
	defer cancelFirst()
	defer cancelSecond()

	// Act
	dispatcher.Publish(context.Background(), interfaces.Event{
		Type:      interfaces.EventDirectoryUpdated,
		ProfileID: "prof_1",
		Directory: "INBOX",
	})

	// Assert
	got := <-first
	assert.Equal(t, interfaces.EventDirectoryUpdated, got.Type)
	assert.Equal(t, "INBOX", got.Directory)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.At.IsZero())

	got = <-second
	assert.Equal(t, "prof_1", got.ProfileID)
}

func TestCancelledSubscriberStopsReceiving(t *testing.T) {
	// Arrange
	dispatcher := NewDispatcher(getLogger())
	ch, cancel := dispatcher.Subscribe(4)

	// Act
	cancel()
	dispatcher.Publish(context.Background(), interfaces.Event{Type: interfaces.EventEmailDeleted})

	// Assert: channel is closed and drained.
	_, open := <-ch
	assert.False(t, open)
}

func TestCancelIsIdempotent(t *testing.T) {
	dispatcher := NewDispatcher(getLogger())
	_, cancel := dispatcher.Subscribe(1)

	cancel()
	assert.NotPanics(t, cancel)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	// Arrange
	dispatcher := NewDispatcher(getLogger())
	ch, cancel := dispatcher.Subscribe(1)
	defer cancel()

	// Act: second publish overflows the buffer and must not block.
	dispatcher.Publish(context.Background(), interfaces.Event{Type: interfaces.EventDirectoryUpdated, Directory: "one"})
	dispatcher.Publish(context.Background(), interfaces.Event{Type: interfaces.EventDirectoryUpdated, Directory: "two"})

	// Assert: only the first event is delivered.
	got := <-ch
	assert.Equal(t, "one", got.Directory)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %s", extra.Directory)
	default:
	}
}

func TestCloseEndsAllSubscriptions(t *testing.T) {
	// Arrange
	dispatcher := NewDispatcher(getLogger())
	ch, cancel := dispatcher.Subscribe(1)
	defer cancel()

	// Act
	dispatcher.Close()

	// Assert
	_, open := <-ch
	assert.False(t, open)
	assert.NotPanics(t, func() {
		dispatcher.Publish(context.Background(), interfaces.Event{Type: interfaces.EventSendCompleted})
	})
	assert.NotPanics(t, dispatcher.Close)
}

func TestSubscribeAfterClose(t *testing.T) {
	dispatcher := NewDispatcher(getLogger())
	dispatcher.Close()

	ch, cancel := dispatcher.Subscribe(1)
	require.NotNil(t, cancel)

	_, open := <-ch
	assert.False(t, open)
}
