package pef

import (
	"time"

	"github.com/pkg/errors"

	"github.com/lunixbochs/pef/go/buffer"
	"github.com/lunixbochs/pef/go/view"
)

// macEpoch is the origin of PEF timestamps.
var macEpoch = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)

// ParseHeader reads the container header at offset 0 and checks the first tag.
// The second tag and the format version are exposed but not validated.
func ParseHeader(buf buffer.Buffer) (ContainerHeader, error) {
	if magic, err := buf.ReadAt(0, 4); err == nil && be.Uint32(magic) != Tag1 {
		return nil, errors.Wrapf(ErrInvalidMagic, "tag1 %#08x", be.Uint32(magic))
	}
	if buf.Len() < ContainerHeaderSize {
		return nil, errors.Wrapf(ErrTooShort, "%d bytes", buf.Len())
	}
	return view.One[ContainerHeader](buf, 0, ContainerHeaderSize)
}

// Match reports whether p starts with the PEF container tags.
func Match(p []byte) bool {
	return len(p) >= 8 && be.Uint32(p) == Tag1 && be.Uint32(p[4:]) == Tag2
}

func (h ContainerHeader) Architecture() Architecture {
	switch h.RawArchitecture() {
	case ArchPowerPC:
		return ArchitecturePowerPC
	case Arch68K:
		return Architecture68K
	}
	return ArchitectureUnknown
}

// Timestamp converts DateTimeStamp, in seconds since 1904, to a time.
func (h ContainerHeader) Timestamp() time.Time {
	return macEpoch.Add(time.Duration(h.DateTimeStamp()) * time.Second)
}
