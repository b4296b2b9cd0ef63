package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tickwire/netcode/pkg/tick"
)

func drainToReceiver(t *testing.T, s Sender, r Receiver, now time.Time, rtt time.Duration) {
	t.Helper()
	for _, item := range s.CollectMessagesToSend(now, rtt) {
		r.BufferRecv(toReceivedMessage(item))
	}
}

func toReceivedMessage(item OutboundItem) ReceivedMessage {
	if item.Fragment != nil {
		f := item.Fragment
		return ReceivedMessage{
			IsFragment: true,
			Tick:       f.Tick,
			Bytes:      f.Bytes,
			FragmentID: f.FragmentID,
			NumFrags:   f.NumFragments,
			FragMsgID:  uint16(f.MessageID),
		}
	}
	m := item.Message
	return ReceivedMessage{ID: (*uint16)(m.ID), Tick: m.Tick, Bytes: m.Bytes}
}

func TestUnorderedUnreliableDeliversEverything(t *testing.T) {
	s := NewSender(Settings{Mode: UnorderedUnreliable})
	r := NewReceiver(Settings{Mode: UnorderedUnreliable})

	s.BufferSend([]byte("a"), 0)
	s.BufferSend([]byte("b"), 0)
	drainToReceiver(t, s, r, time.Now(), 0)

	got := r.ReadMessages()
	require.Len(t, got, 2)
	require.Equal(t, "a", string(got[0]))
	require.Equal(t, "b", string(got[1]))
}

func TestSequencedUnreliableDropsStale(t *testing.T) {
	s := NewSender(Settings{Mode: SequencedUnreliable}).(*channelSender)
	r := NewReceiver(Settings{Mode: SequencedUnreliable})

	now := time.Now()
	s.BufferSend([]byte("1"), 0)
	s.BufferSend([]byte("2"), 0)
	s.BufferSend([]byte("3"), 0)
	msgs := s.CollectMessagesToSend(now, 0)
	require.Len(t, msgs, 3)

	// Deliver out of order: 3rd, then 1st (stale, dropped), then 2nd (also stale).
	r.BufferRecv(toReceivedMessage(msgs[2]))
	r.BufferRecv(toReceivedMessage(msgs[0]))
	r.BufferRecv(toReceivedMessage(msgs[1]))

	got := r.ReadMessages()
	require.Len(t, got, 1)
	require.Equal(t, "3", string(got[0]))
}

func TestOrderedReliableReleasesInOrder(t *testing.T) {
	s := NewSender(Settings{Mode: OrderedReliable, ResendRTTFactor: 1.5}).(*channelSender)
	r := NewReceiver(Settings{Mode: OrderedReliable})

	now := time.Now()
	s.BufferSend([]byte("x"), 0)
	s.BufferSend([]byte("y"), 0)
	s.BufferSend([]byte("z"), 0)
	msgs := s.CollectMessagesToSend(now, 50*time.Millisecond)
	require.Len(t, msgs, 3)

	// Arrive out of order: z, x, y.
	r.BufferRecv(toReceivedMessage(msgs[2]))
	require.Empty(t, r.ReadMessages())

	r.BufferRecv(toReceivedMessage(msgs[0]))
	got := r.ReadMessages()
	require.Len(t, got, 1)
	require.Equal(t, "x", string(got[0]))

	r.BufferRecv(toReceivedMessage(msgs[1]))
	got = r.ReadMessages()
	require.Len(t, got, 2)
	require.Equal(t, "y", string(got[0]))
	require.Equal(t, "z", string(got[1]))
}

func TestReliableResendsAfterRTTFactorElapses(t *testing.T) {
	s := NewSender(Settings{Mode: UnorderedReliable, ResendRTTFactor: 1.0}).(*channelSender)

	t0 := time.Now()
	s.BufferSend([]byte("hello"), 0)

	first := s.CollectMessagesToSend(t0, 100*time.Millisecond)
	require.Len(t, first, 1)

	// Too soon: resend timer has not elapsed yet.
	second := s.CollectMessagesToSend(t0.Add(50*time.Millisecond), 100*time.Millisecond)
	require.Empty(t, second)

	// Past resend threshold: the unacked message goes out again.
	third := s.CollectMessagesToSend(t0.Add(200*time.Millisecond), 100*time.Millisecond)
	require.Len(t, third, 1)

	require.True(t, s.HasMessagesToSend())
	s.NotifyMessageDelivered(MessageAck{MessageID: *first[0].Message.ID})
	require.False(t, s.HasMessagesToSend())
}

func TestUnorderedReliableDedupsDeliveredMessages(t *testing.T) {
	r := NewReceiver(Settings{Mode: UnorderedReliable})
	id := uint16(5)

	r.BufferRecv(ReceivedMessage{ID: &id, Bytes: []byte("once")})
	r.BufferRecv(ReceivedMessage{ID: &id, Bytes: []byte("once")}) // retransmit duplicate

	got := r.ReadMessages()
	require.Len(t, got, 1)
}

func TestTickBufferedReleasesWhenConsumerTickCatchesUp(t *testing.T) {
	s := NewSender(Settings{Mode: TickBuffered}).(*channelSender)
	r := NewReceiver(Settings{Mode: TickBuffered}).(*channelReceiver)

	sendTick := tick.Tick(100)
	s.BufferSendAtTick(sendTick, []byte("state"), 0)
	msgs := s.CollectMessagesToSend(time.Now(), 0)
	require.Len(t, msgs, 1)

	r.BufferRecv(toReceivedMessage(msgs[0]))
	r.Update(tick.Tick(99))
	require.Empty(t, r.ReadMessages())

	r.Update(tick.Tick(100))
	got := r.ReadMessages()
	require.Len(t, got, 1)
	require.Equal(t, "state", string(got[0]))
}

func TestFragmentedMessageReassemblesAcrossReceiveCalls(t *testing.T) {
	s := NewSender(Settings{Mode: OrderedReliable, ResendRTTFactor: 1.5}).(*channelSender)
	r := NewReceiver(Settings{Mode: OrderedReliable})

	big := make([]byte, 1800)
	for i := range big {
		big[i] = byte(i)
	}
	s.BufferSend(big, 0)
	frags := s.CollectMessagesToSend(time.Now(), time.Second)
	require.True(t, len(frags) >= 2)

	for _, f := range frags {
		require.NotNil(t, f.Fragment)
		r.BufferRecv(toReceivedMessage(f))
	}

	got := r.ReadMessages()
	require.Len(t, got, 1)
	require.Equal(t, big, got[0])
}
