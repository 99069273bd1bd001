package rpc

import "testing"

func TestFunctionCallRoundTrip(t *testing.T) {
	want := FunctionCall{FunctionName: "Reverse", Parameter: []byte("abc")}

	raw, err := EncodeCall(want)
	if err != nil {
		t.Fatalf("EncodeCall: %v", err)
	}
	got, err := DecodeCall(raw)
	if err != nil {
		t.Fatalf("DecodeCall: %v", err)
	}
	if got.FunctionName != want.FunctionName {
		t.Fatalf("FunctionName = %q, want %q", got.FunctionName, want.FunctionName)
	}
	if string(got.Parameter) != string(want.Parameter) {
		t.Fatalf("Parameter = %q, want %q", got.Parameter, want.Parameter)
	}
}

func TestFunctionCallResponseRoundTrip(t *testing.T) {
	want := FunctionCallResponse{Data: []byte("cba")}

	raw, err := EncodeResponse(want)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	got, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if string(got.Data) != string(want.Data) {
		t.Fatalf("Data = %q, want %q", got.Data, want.Data)
	}
}
