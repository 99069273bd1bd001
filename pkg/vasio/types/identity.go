package types

import (
	"fmt"
	"hash/fnv"
)

// ParticipantName is the human-readable identity a participant announces
// itself with on JoinDomain.
type ParticipantName string

// ParticipantId is the stable 64-bit hash of a ParticipantName. The
// registry itself always uses the reserved id 0.
type ParticipantId uint64

const RegistryParticipantId ParticipantId = 0

// HashParticipantName derives the stable id used on the wire for a given
// participant name. It never changes for a given name, so it is safe to
// use as a map key across process restarts.
func HashParticipantName(name ParticipantName) ParticipantId {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return ParticipantId(h.Sum64())
}

// EndpointId is a per-participant, monotonically increasing counter
// assigned when a controller or service is created locally.
type EndpointId uint64

// EndpointAddress names a single sender or receiver endpoint, unique within
// the whole domain.
type EndpointAddress struct {
	Participant ParticipantId
	Endpoint    EndpointId
}

func (a EndpointAddress) String() string {
	return fmt.Sprintf("%d/%d", a.Participant, a.Endpoint)
}

// ServiceType classifies a ServiceDescriptor the same way the bus
// distinguishes links, controllers and internal plumbing services.
type ServiceType uint8

const (
	ServiceUndefined ServiceType = iota
	ServiceLink
	ServiceController
	ServiceSimulatedController
	ServiceInternalController
)

// SupplementalData is an ordered string->string map attached to a
// ServiceDescriptor, e.g. an RPC client's function name or UUID. Order is
// preserved because it is part of the wire representation.
type SupplementalData struct {
	keys   []string
	values map[string]string
}

func NewSupplementalData() *SupplementalData {
	return &SupplementalData{values: make(map[string]string)}
}

func (s *SupplementalData) Set(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

func (s *SupplementalData) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (s *SupplementalData) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

func (s *SupplementalData) Len() int {
	return len(s.keys)
}

// ServiceDescriptor is the logical sender identity carried on every message.
// Equality is (ParticipantId, NetworkName, ServiceType, EndpointId).
type ServiceDescriptor struct {
	ParticipantName  ParticipantName
	ParticipantId    ParticipantId
	ServiceType      ServiceType
	NetworkName      string
	NetworkType      string
	ServiceName      string
	EndpointId       EndpointId
	SupplementalData *SupplementalData
}

func (d ServiceDescriptor) Equal(other ServiceDescriptor) bool {
	return d.ParticipantId == other.ParticipantId &&
		d.NetworkName == other.NetworkName &&
		d.ServiceType == other.ServiceType &&
		d.EndpointId == other.EndpointId
}

func (d ServiceDescriptor) ToEndpointAddress() EndpointAddress {
	return EndpointAddress{Participant: d.ParticipantId, Endpoint: d.EndpointId}
}
