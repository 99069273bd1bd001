package link

import (
	"errors"
	"testing"

	"github.com/silkit-go/vasio/pkg/vasio/types"
)

func TestSubscriptionRegistryAllocateIsIdempotent(t *testing.T) {
	reg := NewSubscriptionRegistry()
	l := NewVirtualLink[string]("CAN1", "can.FrameEvent", encodeString, decodeString)

	idx1, created1 := reg.Allocate("CAN1", "can.FrameEvent", l)
	if !created1 {
		t.Fatal("expected first Allocate to create a new index")
	}

	idx2, created2 := reg.Allocate("CAN1", "can.FrameEvent", l)
	if created2 {
		t.Fatal("expected second Allocate to reuse the existing index")
	}
	if idx1 != idx2 {
		t.Fatalf("index changed between calls: %d != %d", idx1, idx2)
	}
}

func TestSubscriptionRegistryLookup(t *testing.T) {
	reg := NewSubscriptionRegistry()
	l := NewVirtualLink[string]("CAN1", "can.FrameEvent", encodeString, decodeString)

	if _, ok := reg.Lookup("CAN1", "can.FrameEvent"); ok {
		t.Fatal("expected no index before Allocate")
	}
	want, _ := reg.Allocate("CAN1", "can.FrameEvent", l)
	got, ok := reg.Lookup("CAN1", "can.FrameEvent")
	if !ok || got != want {
		t.Fatalf("Lookup = %d, %v, want %d, true", got, ok, want)
	}
}

func TestSubscriptionRegistryDispatch(t *testing.T) {
	reg := NewSubscriptionRegistry()
	l := NewVirtualLink[string]("CAN1", "can.FrameEvent", encodeString, decodeString)

	var got string
	l.AddLocalReceiver(func(from types.EndpointAddress, msg string) { got = msg })

	idx, _ := reg.Allocate("CAN1", "can.FrameEvent", l)
	if err := reg.Dispatch(idx, types.EndpointAddress{}, []byte("frame-x")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got != "frame-x" {
		t.Fatalf("local handler got %q, want frame-x", got)
	}
}

func TestSubscriptionRegistryDispatchUnknownIndex(t *testing.T) {
	reg := NewSubscriptionRegistry()
	err := reg.Dispatch(types.EndpointId(99), types.EndpointAddress{}, nil)
	if !errors.Is(err, types.ErrInvalidOperation) {
		t.Fatalf("Dispatch = %v, want ErrInvalidOperation", err)
	}
}
