package loader

import (
	"math"

	"github.com/lunixbochs/pef/go/models"
	"github.com/lunixbochs/pef/go/pef"
)

var sectionKindMap = map[pef.SectionKind]models.SectionKind{
	pef.KindCode:                   models.SectionText,
	pef.KindUnpackedData:           models.SectionData,
	pef.KindPatternInitializedData: models.SectionData,
	pef.KindConstant:               models.SectionReadOnlyData,
	pef.KindLoader:                 models.SectionMetadata,
	pef.KindDebug:                  models.SectionDebug,
	pef.KindExecutableData:         models.SectionData,
	pef.KindException:              models.SectionOther,
	pef.KindTraceback:              models.SectionDebug,
}

func sectionProt(k pef.SectionKind) int {
	switch k {
	case pef.KindCode:
		return models.PROT_READ | models.PROT_EXEC
	case pef.KindUnpackedData, pef.KindPatternInitializedData:
		return models.PROT_READ | models.PROT_WRITE
	case pef.KindConstant:
		return models.PROT_READ
	case pef.KindExecutableData:
		return models.PROT_ALL
	}
	return models.PROT_NONE
}

var _ models.Section = (*pefSection)(nil)

// pefSection adapts a section table entry to models.Section.
type pefSection struct {
	sec  *pef.Section
	name string
}

// PEF returns the underlying section table entry.
func (s *pefSection) PEF() *pef.Section { return s.sec }

func (s *pefSection) Index() models.SectionIndex { return models.SectionIndex(s.sec.Number + 1) }
func (s *pefSection) Name() string               { return s.name }
func (s *pefSection) Address() uint64            { return uint64(s.sec.DefaultAddress()) }
func (s *pefSection) Align() uint64              { return s.sec.Align() }

func (s *pefSection) Kind() models.SectionKind {
	if k, ok := sectionKindMap[s.sec.Kind()]; ok {
		return k
	}
	return models.SectionUnknown
}

// Size is the in-memory size of instantiated sections and the stored size of
// the rest.
func (s *pefSection) Size() uint64 {
	if s.sec.Instantiated {
		return uint64(s.sec.TotalSize())
	}
	_, size := s.sec.FileRange()
	return uint64(size)
}

func (s *pefSection) FileRange() (off, size uint64, ok bool) {
	o, n := s.sec.FileRange()
	return uint64(o), uint64(n), n > 0
}

func (s *pefSection) Data() ([]byte, error) {
	return s.sec.Data()
}

func (s *pefSection) UnpackedData() ([]byte, error) {
	return s.sec.UnpackedData()
}

func (s *pefSection) DataRange(addr, size uint64) ([]byte, bool, error) {
	if addr > math.MaxUint32 || size > math.MaxUint32 {
		return nil, false, nil
	}
	return s.sec.DataRange(uint32(addr), uint32(size))
}

func (s *pefSection) Prot() int {
	if !s.sec.Instantiated {
		return models.PROT_NONE
	}
	return sectionProt(s.sec.Kind())
}

// Relocations is always empty: PEF relocations live in the loader section
// and are read with PefLoader.SectionRelocations.
func (s *pefSection) Relocations() []models.Relocation {
	return nil
}
