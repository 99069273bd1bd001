package link

import (
	"fmt"
	"sync"

	"github.com/silkit-go/vasio/pkg/vasio/types"
)

// RawReceiver is the type-erased face of a VirtualLink[T] that
// SubscriptionRegistry dispatches inbound frames to.
type RawReceiver interface {
	DeliverRaw(from types.EndpointAddress, payload []byte) error
	NetworkName() string
	MessageName() string
	RemoveRemotesForPeer(peer RemoteSink)
}

// SubscriptionRegistry is the process-wide, grows-only table mapping a
// receiverIndex to the VirtualLink it was allocated for. Index allocation
// and (networkName, messageTypeName) lookups are also owned here so a
// given pair never gets more than one VirtualLink per process.
type SubscriptionRegistry struct {
	mu sync.Mutex

	byIndex []RawReceiver
	byKey   map[string]types.EndpointId
}

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{byKey: make(map[string]types.EndpointId)}
}

func linkKey(networkName, messageTypeName string) string {
	return networkName + "\x00" + messageTypeName
}

// Allocate returns the existing receiverIndex for (networkName,
// messageTypeName) if one was already issued, or assigns the next
// contiguous index and records receiver as its owner.
func (r *SubscriptionRegistry) Allocate(networkName, messageTypeName string, receiver RawReceiver) (types.EndpointId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := linkKey(networkName, messageTypeName)
	if idx, ok := r.byKey[key]; ok {
		return idx, false
	}
	idx := types.EndpointId(len(r.byIndex))
	r.byIndex = append(r.byIndex, receiver)
	r.byKey[key] = idx
	return idx, true
}

// Lookup returns the link's wire receiverIndex without allocating one.
func (r *SubscriptionRegistry) Lookup(networkName, messageTypeName string) (types.EndpointId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byKey[linkKey(networkName, messageTypeName)]
	return idx, ok
}

// Dispatch routes an inbound (receiverIndex, payload) frame to the
// VirtualLink that owns that index.
func (r *SubscriptionRegistry) Dispatch(receiverIndex types.EndpointId, from types.EndpointAddress, payload []byte) error {
	r.mu.Lock()
	if int(receiverIndex) >= len(r.byIndex) {
		r.mu.Unlock()
		return fmt.Errorf("link: receiver index %d has no registered link: %w", receiverIndex, types.ErrInvalidOperation)
	}
	receiver := r.byIndex[receiverIndex]
	r.mu.Unlock()
	return receiver.DeliverRaw(from, payload)
}
