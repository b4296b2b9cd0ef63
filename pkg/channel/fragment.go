package channel

import "github.com/tickwire/netcode/pkg/codec"

// fragmentAssembler reassembles fragmented messages arriving out of order
// or interleaved with fragments of other messages, shared by every
// receiver mode.
type fragmentAssembler struct {
	pending map[codec.MessageID][]*codec.Fragment
}

func newFragmentAssembler() *fragmentAssembler {
	return &fragmentAssembler{pending: make(map[codec.MessageID][]*codec.Fragment)}
}

// Add records one fragment and returns the reassembled payload once every
// fragment for its MessageID has arrived.
func (a *fragmentAssembler) Add(f codec.Fragment) ([]byte, bool) {
	slots := a.pending[f.MessageID]
	if slots == nil {
		slots = make([]*codec.Fragment, f.NumFragments)
		a.pending[f.MessageID] = slots
	}
	if int(f.FragmentID) >= len(slots) {
		return nil, false
	}
	cp := f
	slots[f.FragmentID] = &cp

	for _, s := range slots {
		if s == nil {
			return nil, false
		}
	}

	frags := make([]codec.Fragment, len(slots))
	for i, s := range slots {
		frags[i] = *s
	}
	delete(a.pending, f.MessageID)
	return codec.ReassembleFragments(frags), true
}

// Discard drops any partial state for a message. No receiver path in this
// package calls it; partial fragments otherwise stay pending.
func (a *fragmentAssembler) Discard(id codec.MessageID) {
	delete(a.pending, id)
}
