package types

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// ProtocolVersion is the (major, minor) pair negotiated during handshake.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func (v ProtocolVersion) Unknown() bool {
	return v.Major == 0 && v.Minor == 0
}

// CurrentProtocolVersion is the version this implementation emits on a new
// handshake.
var CurrentProtocolVersion = ProtocolVersion{Major: 3, Minor: 1}

var supportedVersions = []ProtocolVersion{
	{Major: 3, Minor: 0},
	{Major: 3, Minor: 1},
}

// ProtocolVersionSupported reports whether a peer announcing this version
// can be handshaken with. Per spec.md §9(c) and §4.8, versions 3.0 and 3.1
// are the only ones accepted; anything else is rejected.
func ProtocolVersionSupported(v ProtocolVersion) bool {
	for _, s := range supportedVersions {
		if s == v {
			return true
		}
	}
	return false
}

// MapVersionToRelease gives a human string for log lines, mirroring the
// original implementation's version/release mapping table.
func MapVersionToRelease(v ProtocolVersion) string {
	switch v {
	case ProtocolVersion{Major: 3, Minor: 0}:
		return "v3.99.22"
	case ProtocolVersion{Major: 3, Minor: 1}:
		return "v3.99.23 - current"
	default:
		return "unknown version range"
	}
}

// ReleaseSemver parses the semver-ish prefix of MapVersionToRelease's
// output, giving callers (NewerRelease) an orderable value instead of a
// bare comparison string.
func ReleaseSemver(v ProtocolVersion) (*version.Version, error) {
	release := strings.TrimSuffix(strings.TrimSpace(strings.SplitN(MapVersionToRelease(v), "-", 2)[0]), " ")
	return version.NewVersion(release)
}

// NewerRelease reports whether a's release is newer than b's, used to warn
// when a peer announces a protocol version mapped to a newer release than
// our own.
func NewerRelease(a, b ProtocolVersion) (bool, error) {
	va, err := ReleaseSemver(a)
	if err != nil {
		return false, fmt.Errorf("types: parsing release for %s: %w", a, err)
	}
	vb, err := ReleaseSemver(b)
	if err != nil {
		return false, fmt.Errorf("types: parsing release for %s: %w", b, err)
	}
	return va.GreaterThan(vb), nil
}
