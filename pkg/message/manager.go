// Package message implements the manager that composes the packet
// codec, channel senders/receivers, and the priority/bandwidth gate into
// a single send/receive surface driven once per tick. Grounded on a
// dispatch-table packet handler, generalized from a fixed per-kind
// switch to per-channel routing over a registry.
package message

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tickwire/netcode/pkg/channel"
	"github.com/tickwire/netcode/pkg/codec"
	"github.com/tickwire/netcode/pkg/priority"
	"github.com/tickwire/netcode/pkg/tick"
)

// ErrUnknownChannel is returned by BufferSend for an unregistered channel.
var ErrUnknownChannel = errors.New("message: unknown channel")

// Role distinguishes which end of a channel's Direction setting this
// manager plays, so ClientToServer/ServerToClient channels are only ever
// sent from the correct side.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

type boundChannel struct {
	settings channel.Settings
	sender   channel.Sender
	receiver channel.Receiver
}

// Received is one fully reassembled message handed to the application,
// still tagged with the tick it was sent at when the channel preserves one.
type Received struct {
	Tick  *tick.Tick
	Bytes []byte
}

// Manager owns every channel's sender/receiver pair, the priority gate, and
// the bookkeeping needed to turn acks on received packets into delivery
// notifications for the channels that sent them.
type Manager struct {
	log  *zap.Logger
	role Role

	priority *priority.Manager
	channels map[codec.ChannelID]*boundChannel

	nextPacketID    codec.PacketID
	outstandingAcks map[codec.PacketID][]ackEntry
	recvSeen        ackTracker
}

// NewManager builds an empty manager; channels are added via Register.
func NewManager(role Role, pri *priority.Manager, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		log:             log,
		role:            role,
		priority:        pri,
		channels:        make(map[codec.ChannelID]*boundChannel),
		outstandingAcks: make(map[codec.PacketID][]ackEntry),
	}
}

// Register installs a channel under id with the given settings, creating
// its sender and receiver.
func (m *Manager) Register(id codec.ChannelID, settings channel.Settings) {
	m.channels[id] = &boundChannel{
		settings: settings,
		sender:   channel.NewSender(settings),
		receiver: channel.NewReceiver(settings),
	}
}

func (m *Manager) sendAllowed(settings channel.Settings) bool {
	switch settings.Direction {
	case channel.ClientToServer:
		return m.role == RoleClient
	case channel.ServerToClient:
		return m.role == RoleServer
	}
	return true
}

// BufferSend serializes bytes onto channel id's sender, failing if the
// channel is unregistered.
func (m *Manager) BufferSend(id codec.ChannelID, bytes []byte, priorityWeight float32) (*codec.MessageID, error) {
	bc, ok := m.channels[id]
	if !ok {
		return nil, ErrUnknownChannel
	}
	if !m.sendAllowed(bc.settings) {
		return nil, errors.Errorf("message: channel %d does not permit sends from this role", id)
	}
	return bc.sender.BufferSend(bytes, priorityWeight), nil
}

// BufferSendAtTick is the TickBuffered-mode send path: it buffers bytes
// against t rather than the implicit send-now queue, replacing any
// previously buffered message for the same tick on this channel.
func (m *Manager) BufferSendAtTick(id codec.ChannelID, t tick.Tick, bytes []byte, priorityWeight float32) error {
	bc, ok := m.channels[id]
	if !ok {
		return ErrUnknownChannel
	}
	if !m.sendAllowed(bc.settings) {
		return errors.Errorf("message: channel %d does not permit sends from this role", id)
	}
	bc.sender.BufferSendAtTick(t, bytes, priorityWeight)
	return nil
}

type candidateItem struct {
	channelID codec.ChannelID
	item      channel.OutboundItem
}

func estimatedLen(item channel.OutboundItem) int {
	if item.Fragment != nil {
		return len(item.Fragment.Bytes) + 16
	}
	if item.Message != nil {
		return len(item.Message.Bytes) + 8
	}
	return 0
}

func priorityOf(item channel.OutboundItem) float32 {
	if item.Fragment != nil {
		return item.Fragment.Priority
	}
	if item.Message != nil {
		return item.Message.Priority
	}
	return 0
}

// SendPackets collects everything channels have ready, priority-filters it
// against the bandwidth gate, packs the admitted items into one or more
// MTU-bounded packets stamped with currentTick, and returns their encoded
// bytes.
func (m *Manager) SendPackets(currentTick tick.Tick, now time.Time, rtt time.Duration) ([][]byte, error) {
	var candidates []candidateItem
	var priCandidates []priority.Candidate

	for id, bc := range m.channels {
		if !m.sendAllowed(bc.settings) {
			continue
		}
		for _, item := range bc.sender.CollectMessagesToSend(now, rtt) {
			idx := len(candidates)
			candidates = append(candidates, candidateItem{channelID: id, item: item})
			priCandidates = append(priCandidates, priority.Candidate{
				MessageIndex: idx,
				Priority:     priorityOf(item),
				EstimatedLen: estimatedLen(item),
			})
		}
	}

	sel := m.priority.Select(priCandidates)
	if len(sel.Held) > 0 {
		m.log.Debug("priority manager held back messages", zap.Int("held", len(sel.Held)))
	}

	var packets [][]byte
	var curChannels []codec.ChannelMessages
	var curAcks []ackEntry

	flush := func() error {
		if len(curChannels) == 0 {
			return nil
		}
		id := m.allocPacketID()
		lastAck, bitfield := m.recvSeen.Header()
		pkt := codec.Packet{
			Header: codec.Header{
				Type:        codec.PacketTypeData,
				PacketID:    id,
				LastAckID:   lastAck,
				AckBitfield: bitfield,
				Tick:        currentTick,
			},
			Channels: curChannels,
		}
		raw, err := codec.Encode(pkt)
		if err != nil {
			return err
		}
		m.outstandingAcks[id] = curAcks
		m.priority.Reconcile(len(raw), now)
		packets = append(packets, raw)
		curChannels = nil
		curAcks = nil
		return nil
	}

	for _, c := range sel.Admitted {
		ci := candidates[c.MessageIndex]

		if ci.item.Fragment != nil {
			if err := flush(); err != nil {
				return nil, err
			}
			id := m.allocPacketID()
			lastAck, bitfield := m.recvSeen.Header()
			pkt := codec.Packet{
				Header: codec.Header{
					Type:        codec.PacketTypeDataFragment,
					PacketID:    id,
					LastAckID:   lastAck,
					AckBitfield: bitfield,
					Tick:        currentTick,
				},
				FragChannel: ci.channelID,
				Frag:        *ci.item.Fragment,
			}
			raw, err := codec.Encode(pkt)
			if err != nil {
				return nil, err
			}
			fragID := ci.item.Fragment.FragmentID
			m.outstandingAcks[id] = []ackEntry{{
				channel: ci.channelID,
				ack:     channel.MessageAck{MessageID: ci.item.Fragment.MessageID, FragmentID: &fragID},
			}}
			m.priority.Reconcile(len(raw), now)
			packets = append(packets, raw)
			continue
		}

		trial := appendMessage(curChannels, ci.channelID, *ci.item.Message)
		trialPkt := codec.Packet{
			Header:   codec.Header{Type: codec.PacketTypeData, Tick: currentTick},
			Channels: trial,
		}
		if _, err := codec.Encode(trialPkt); err != nil {
			if flushErr := flush(); flushErr != nil {
				return nil, flushErr
			}
			trial = appendMessage(nil, ci.channelID, *ci.item.Message)
		}
		curChannels = trial
		if ci.item.Message.ID != nil {
			curAcks = append(curAcks, ackEntry{channel: ci.channelID, ack: channel.MessageAck{MessageID: *ci.item.Message.ID}})
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return packets, nil
}

func appendMessage(channels []codec.ChannelMessages, chID codec.ChannelID, msg codec.Message) []codec.ChannelMessages {
	out := make([]codec.ChannelMessages, len(channels))
	for i, c := range channels {
		msgs := make([]codec.Message, len(c.Messages))
		copy(msgs, c.Messages)
		out[i] = codec.ChannelMessages{Channel: c.Channel, Messages: msgs}
	}
	for i := range out {
		if out[i].Channel == chID {
			out[i].Messages = append(out[i].Messages, msg)
			return out
		}
	}
	return append(out, codec.ChannelMessages{Channel: chID, Messages: []codec.Message{msg}})
}

// RecvPacket decodes one incoming datagram, fires delivery notifications
// for any of our previously sent packets the header's ack state now
// confirms, and routes the packet's messages to their channel receivers.
// It returns the packet's stamped tick.
func (m *Manager) RecvPacket(data []byte) (tick.Tick, error) {
	pkt, err := codec.Decode(data)
	if err != nil {
		return 0, err
	}

	m.recvSeen.Record(pkt.Header.PacketID)
	m.processAckHeader(pkt.Header.LastAckID, pkt.Header.AckBitfield)

	switch pkt.Header.Type {
	case codec.PacketTypeData:
		m.routeChannelMessages(pkt.Channels, pkt.Header.Tick)
	case codec.PacketTypeDataFragment:
		m.routeFragment(pkt.FragChannel, pkt.Frag)
		if len(pkt.Tail) > 0 {
			m.routeChannelMessages(pkt.Tail, pkt.Header.Tick)
		}
	}

	return pkt.Header.Tick, nil
}

func (m *Manager) routeChannelMessages(channels []codec.ChannelMessages, t tick.Tick) {
	for _, cm := range channels {
		bc, ok := m.channels[cm.Channel]
		if !ok {
			continue
		}
		for _, msg := range cm.Messages {
			recv := channel.ReceivedMessage{Bytes: msg.Bytes}
			if msg.ID != nil {
				id := uint16(*msg.ID)
				recv.ID = &id
			}
			if msg.Tick != nil {
				recv.Tick = msg.Tick
			} else {
				recv.Tick = &t
			}
			bc.receiver.BufferRecv(recv)
		}
	}
}

func (m *Manager) routeFragment(chID codec.ChannelID, f codec.Fragment) {
	bc, ok := m.channels[chID]
	if !ok {
		return
	}
	bc.receiver.BufferRecv(channel.ReceivedMessage{
		IsFragment: true,
		Tick:       f.Tick,
		Bytes:      f.Bytes,
		FragmentID: f.FragmentID,
		NumFrags:   f.NumFragments,
		FragMsgID:  uint16(f.MessageID),
	})
}

func (m *Manager) processAckHeader(lastAck codec.PacketID, bitfield uint32) {
	m.deliverAck(lastAck)
	for i := uint(0); i < 32; i++ {
		if bitfield&(1<<i) != 0 {
			id := codec.PacketID(uint16(lastAck) - uint16(i) - 1)
			m.deliverAck(id)
		}
	}
}

func (m *Manager) deliverAck(id codec.PacketID) {
	entries, ok := m.outstandingAcks[id]
	if !ok {
		return
	}
	for _, e := range entries {
		if bc, ok := m.channels[e.channel]; ok {
			bc.sender.NotifyMessageDelivered(e.ack)
		}
	}
	delete(m.outstandingAcks, id)
}

// ReadMessages drains every channel's ready messages, grouped by channel id.
func (m *Manager) ReadMessages() map[codec.ChannelID][][]byte {
	out := make(map[codec.ChannelID][][]byte, len(m.channels))
	for id, bc := range m.channels {
		msgs := bc.receiver.ReadMessages()
		if len(msgs) > 0 {
			out[id] = msgs
		}
	}
	return out
}

// UpdateReceivers advances every TickBuffered channel's receiver so
// due messages are released.
func (m *Manager) UpdateReceivers(currentTick tick.Tick) {
	for _, bc := range m.channels {
		bc.receiver.Update(currentTick)
	}
}

func (m *Manager) allocPacketID() codec.PacketID {
	id := m.nextPacketID
	m.nextPacketID++
	return id
}
