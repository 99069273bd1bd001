package can

import "testing"

func TestFrameEventRoundTrip(t *testing.T) {
	want := FrameEvent{CanID: 0x123, Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}}

	raw, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.CanID != want.CanID {
		t.Fatalf("CanID = %#x, want %#x", got.CanID, want.CanID)
	}
	if string(got.Data) != string(want.Data) {
		t.Fatalf("Data = %v, want %v", got.Data, want.Data)
	}
}

func TestFrameEventEmptyData(t *testing.T) {
	raw, err := Encode(FrameEvent{CanID: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Data) != 0 {
		t.Fatalf("Data = %v, want empty", got.Data)
	}
}
