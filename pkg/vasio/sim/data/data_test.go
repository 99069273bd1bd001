package data

import "testing"

func TestMessageEventRoundTrip(t *testing.T) {
	want := MessageEvent{Data: []byte("topic-payload")}

	raw, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(got.Data) != string(want.Data) {
		t.Fatalf("Data = %q, want %q", got.Data, want.Data)
	}
}
