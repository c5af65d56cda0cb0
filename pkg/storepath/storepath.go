// Package storepath defines the validated relative paths accepted by the
// file store. A Path is guaranteed valid by construction: every consumer can
// assume it never escapes the store root, never contains control characters,
// and stays within the depth and length limits below.
package storepath

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Limits enforced by New. A path exceeding any of them is rejected.
const (
	MaxPathBytes    = 4095
	MaxSegments     = 10
	MaxSegmentBytes = 255
)

// ErrInvalidPath is returned for any string that does not satisfy the path
// rules. The wrapping message names the offending input.
var ErrInvalidPath = errors.New("invalid path")

// Prefix is one of the reserved top-level namespaces of the file store.
type Prefix string

const (
	PrefixUpload    Prefix = "upload"
	PrefixBooks     Prefix = "books"
	PrefixIcons     Prefix = "icons"
	PrefixConverted Prefix = "converted"
)

// Valid reports whether p is a member of the closed prefix set.
func (p Prefix) Valid() bool {
	switch p {
	case PrefixUpload, PrefixBooks, PrefixIcons, PrefixConverted:
		return true
	}
	return false
}

func (p Prefix) String() string {
	return string(p)
}

// Path is a validated relative path. The zero value is not valid; obtain
// instances through New, UploadPath, or the Join/WithPrefix combinators.
type Path struct {
	raw string
}

// New validates s and returns it as a Path. Rules: non-empty, at most 4095
// bytes, at most 10 non-empty segments of at most 255 bytes each, no segment
// starting with '.', and no '\', ':' or ASCII control characters anywhere.
func New(s string) (Path, error) {
	if s == "" {
		return Path{}, errors.Wrap(ErrInvalidPath, "empty path")
	}
	if len(s) > MaxPathBytes {
		return Path{}, errors.Wrapf(ErrInvalidPath, "path exceeds %d bytes", MaxPathBytes)
	}
	segments := strings.Split(s, "/")
	if len(segments) > MaxSegments {
		return Path{}, errors.Wrapf(ErrInvalidPath, "path %q exceeds %d segments", s, MaxSegments)
	}
	for _, seg := range segments {
		if err := checkSegment(seg); err != nil {
			return Path{}, errors.Wrapf(err, "path %q", s)
		}
	}
	return Path{raw: s}, nil
}

func checkSegment(seg string) error {
	if seg == "" {
		return errors.Wrap(ErrInvalidPath, "empty segment")
	}
	if len(seg) > MaxSegmentBytes {
		return errors.Wrapf(ErrInvalidPath, "segment %q exceeds %d bytes", seg, MaxSegmentBytes)
	}
	if seg[0] == '.' {
		return errors.Wrapf(ErrInvalidPath, "segment %q starts with a dot", seg)
	}
	for _, b := range []byte(seg) {
		if b == '\\' || b == ':' || b < 0x20 || b == 0x7f {
			return errors.Wrapf(ErrInvalidPath, "segment %q contains forbidden character %q", seg, b)
		}
	}
	return nil
}

// UploadPath mints a fresh upload/<uuid>.<ext> path for an incoming file.
// The extension is taken without a leading dot and must itself be a valid
// segment suffix.
func UploadPath(ext string) (Path, error) {
	ext = strings.TrimPrefix(ext, ".")
	name := uuid.NewString()
	if ext != "" {
		name += "." + ext
	}
	return New(string(PrefixUpload) + "/" + name)
}

// String returns the path as a slash-separated relative string.
func (p Path) String() string {
	return p.raw
}

// IsZero reports whether p is the (invalid) zero value.
func (p Path) IsZero() bool {
	return p.raw == ""
}

// Segments returns the path split on '/'.
func (p Path) Segments() []string {
	return strings.Split(p.raw, "/")
}

// Base returns the final segment.
func (p Path) Base() string {
	if i := strings.LastIndexByte(p.raw, '/'); i >= 0 {
		return p.raw[i+1:]
	}
	return p.raw
}

// Ext returns the extension of the final segment without the leading dot, or
// "" when the segment has none.
func (p Path) Ext() string {
	base := p.Base()
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		return base[i+1:]
	}
	return ""
}

// WithPrefix returns the path with prefix + "/" prepended.
func (p Path) WithPrefix(prefix Prefix) (Path, error) {
	if !prefix.Valid() {
		return Path{}, errors.Wrapf(ErrInvalidPath, "unknown prefix %q", prefix)
	}
	return New(string(prefix) + "/" + p.raw)
}

// WithoutPrefix strips prefix + "/" from the head of the path. It fails when
// the path does not start with the prefix. WithoutPrefix inverts WithPrefix.
func (p Path) WithoutPrefix(prefix Prefix) (Path, error) {
	head := string(prefix) + "/"
	if !strings.HasPrefix(p.raw, head) {
		return Path{}, errors.Wrapf(ErrInvalidPath, "path %q lacks prefix %q", p.raw, prefix)
	}
	return New(strings.TrimPrefix(p.raw, head))
}

// HasPrefix reports whether the first segment equals prefix.
func (p Path) HasPrefix(prefix Prefix) bool {
	return strings.HasPrefix(p.raw, string(prefix)+"/")
}

// Join appends further segments, validating the result.
func (p Path) Join(parts ...string) (Path, error) {
	return New(p.raw + "/" + strings.Join(parts, "/"))
}

// MarshalText implements encoding.TextMarshaler so a Path serialises as a
// plain JSON string.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.raw), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, validating on decode.
func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := New(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
