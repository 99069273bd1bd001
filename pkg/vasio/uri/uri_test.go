package uri

import (
	"errors"
	"testing"

	"github.com/silkit-go/vasio/pkg/vasio/types"
)

func TestParseTcp(t *testing.T) {
	u, err := Parse("tcp://127.0.0.1:8500")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if u.Type() != TypeTcp {
		t.Fatalf("Type = %v, want TypeTcp", u.Type())
	}
	host, err := u.Host()
	if err != nil || host != "127.0.0.1" {
		t.Fatalf("Host = %q, %v", host, err)
	}
	if u.Port() != 8500 {
		t.Fatalf("Port = %d, want 8500", u.Port())
	}
}

func TestParseLocal(t *testing.T) {
	u, err := Parse("local:///tmp/vasio-registry-domain-0.sock")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if u.Type() != TypeLocal {
		t.Fatalf("Type = %v, want TypeLocal", u.Type())
	}
	if u.Path() != "/tmp/vasio-registry-domain-0.sock" {
		t.Fatalf("Path = %q", u.Path())
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"tcp://missingport",
		"tcp://:8500",
		"tcp://127.0.0.1:",
		"local://",
		"ftp://nope",
		"garbage",
	}
	for _, raw := range cases {
		if _, err := Parse(raw); !errors.Is(err, types.ErrInvalidUri) {
			t.Errorf("Parse(%q) = %v, want ErrInvalidUri", raw, err)
		}
	}
}

func TestFromHostPort(t *testing.T) {
	u := FromHostPort("192.168.0.1", 3491)
	if u.Type() != TypeTcp {
		t.Fatalf("Type = %v, want TypeTcp", u.Type())
	}
	if u.String() != "tcp://192.168.0.1:3491" {
		t.Fatalf("String = %q", u.String())
	}
}
