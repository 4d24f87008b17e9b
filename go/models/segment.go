package models

// these constants are used for segment protections
const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

// SegmentData is one region mapped at load time. Off and FileSize locate the
// initialized bytes in the file; Addr and Size give the memory geometry.
type SegmentData struct {
	Name          string
	Section       SectionIndex
	Off, FileSize uint64
	Addr, Size    uint64
	Align         uint64
	Prot          int
	DataFunc      func() ([]byte, error)
}

// Data returns the segment as it appears in memory.
func (s *SegmentData) Data() ([]byte, error) {
	return s.DataFunc()
}

func (s *SegmentData) ContainsVirt(addr uint64) bool {
	return s.Addr <= addr && addr < s.Addr+s.Size
}

// DataRange returns size bytes of the segment's memory image starting at
// addr. ok is false unless the whole range lies inside the segment.
func (s *SegmentData) DataRange(addr, size uint64) (data []byte, ok bool, err error) {
	if !s.ContainsVirt(addr) || size > s.Size-(addr-s.Addr) {
		return nil, false, nil
	}
	p, err := s.Data()
	if err != nil {
		return nil, false, err
	}
	start := addr - s.Addr
	if start+size > uint64(len(p)) {
		return nil, false, nil
	}
	return p[start : start+size], true, nil
}

func (s *SegmentData) Overlaps(o *SegmentData) bool {
	return (s.Addr >= o.Addr && s.Addr < o.Addr+o.Size) || (o.Addr >= s.Addr && o.Addr < s.Addr+s.Size)
}
