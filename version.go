package go_realmd

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a client version "major.minor.patch" as sent in the logon
// challenge and in realm build records. Each component is one byte on the wire.
type Version struct {
	major, minor, patch uint8
	version             string
}

// ParseVersion parses a version string of the form "major.minor.patch".
//
// Examples:
//   - "3.3.5" → Version{major: 3, minor: 3, patch: 5}
//   - "3.3" → error, all three components are required
func ParseVersion(str string) (Version, error) {
	v := Version{version: str}
	segments := strings.Split(str, ".")
	if len(segments) != 3 {
		return Version{}, fmt.Errorf("%w: version %q must be major.minor.patch", ErrInvalidConfiguration, str)
	}
	var err error
	if v.major, err = parseVersionSegment(segments[0], "major", str); err != nil {
		return Version{}, err
	}
	if v.minor, err = parseVersionSegment(segments[1], "minor", str); err != nil {
		return Version{}, err
	}
	if v.patch, err = parseVersionSegment(segments[2], "patch", str); err != nil {
		return Version{}, err
	}
	return v, nil
}

// parseVersionSegment parses a single version segment into a byte.
func parseVersionSegment(segment, segmentName, fullVersion string) (uint8, error) {
	i, err := strconv.ParseUint(segment, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s version %q in %q", ErrInvalidConfiguration, segmentName, segment, fullVersion)
	}
	return uint8(i), nil
}

// NewVersion builds a Version from its components.
func NewVersion(major, minor, patch uint8) Version {
	return Version{
		major:   major,
		minor:   minor,
		patch:   patch,
		version: fmt.Sprintf("%d.%d.%d", major, minor, patch),
	}
}

func (v Version) Major() uint8 { return v.major }
func (v Version) Minor() uint8 { return v.minor }
func (v Version) Patch() uint8 { return v.patch }

func (v Version) String() string {
	if v.version == "" {
		return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
	}
	return v.version
}

// Compare returns -1, 0 or 1 as v is older than, equal to or newer than other.
func (v Version) Compare(other Version) int {
	switch {
	case v.major != other.major:
		return cmpUint8(v.major, other.major)
	case v.minor != other.minor:
		return cmpUint8(v.minor, other.minor)
	default:
		return cmpUint8(v.patch, other.patch)
	}
}

func cmpUint8(a, b uint8) int {
	if a > b {
		return 1
	}
	if a < b {
		return -1
	}
	return 0
}
