package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesTopicSubscribers(t *testing.T) {
	b := NewBroadcaster()
	a, cancelA := b.Subscribe("s1")
	defer cancelA()
	other, cancelOther := b.Subscribe("s2")
	defer cancelOther()

	b.For("s1").Publish(TypeSaving, map[string]bool{"saving": true})

	ev := <-a
	assert.Equal(t, TypeSaving, ev.Type)
	assert.JSONEq(t, `{"saving":true}`, ev.Data)
	assert.Len(t, other, 0)
}

func TestCancelClosesAndForgets(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("s1")
	require.Equal(t, 1, b.Subscribers("s1"))

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers("s1"))

	// publishing to a topic with no subscribers is a no-op
	b.Publish("s1", TypePhase, "idle")
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster()
	_, cancel := b.Subscribe("s1")
	defer cancel()
	for i := 0; i < bufferSize+2; i++ {
		b.Publish("s1", TypeProgress, i)
	}
}

func TestZeroTopicDiscards(t *testing.T) {
	Topic{}.Publish(TypePhase, "idle")
}
