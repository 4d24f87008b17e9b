package pef

import (
	"bytes"

	"github.com/lunixbochs/struc"

	"github.com/lunixbochs/pef/go/view"
)

// On-disk record sizes.
const (
	ContainerHeaderSize  = 40
	SectionHeaderSize    = 28
	LoaderInfoHeaderSize = 56
	ImportedLibrarySize  = 24
	ImportedSymbolSize   = 4
	RelocHeaderSize      = 12
	HashSlotSize         = 4
	ExportKeySize        = 4
	ExportedSymbolSize   = 10
)

// Each record type below is a borrowed view with accessors, paired with a
// plain struct of the same layout for struc (de)serialization.

func decode(p []byte, v interface{}) error {
	return struc.UnpackWithOrder(bytes.NewReader(p), v, be)
}

type ContainerHeader []byte

var (
	hdrTag1             = view.U32{Off: 0, Order: be}
	hdrTag2             = view.U32{Off: 4, Order: be}
	hdrArchitecture     = view.U32{Off: 8, Order: be}
	hdrFormatVersion    = view.U32{Off: 12, Order: be}
	hdrDateTimeStamp    = view.U32{Off: 16, Order: be}
	hdrOldDefVersion    = view.U32{Off: 20, Order: be}
	hdrOldImpVersion    = view.U32{Off: 24, Order: be}
	hdrCurrentVersion   = view.U32{Off: 28, Order: be}
	hdrSectionCount     = view.U16{Off: 32, Order: be}
	hdrInstSectionCount = view.U16{Off: 34, Order: be}
)

func (h ContainerHeader) Tag1() uint32             { return hdrTag1.Get(h) }
func (h ContainerHeader) Tag2() uint32             { return hdrTag2.Get(h) }
func (h ContainerHeader) RawArchitecture() uint32  { return hdrArchitecture.Get(h) }
func (h ContainerHeader) FormatVersion() uint32    { return hdrFormatVersion.Get(h) }
func (h ContainerHeader) DateTimeStamp() uint32    { return hdrDateTimeStamp.Get(h) }
func (h ContainerHeader) OldDefVersion() uint32    { return hdrOldDefVersion.Get(h) }
func (h ContainerHeader) OldImpVersion() uint32    { return hdrOldImpVersion.Get(h) }
func (h ContainerHeader) CurrentVersion() uint32   { return hdrCurrentVersion.Get(h) }
func (h ContainerHeader) SectionCount() uint16     { return hdrSectionCount.Get(h) }
func (h ContainerHeader) InstSectionCount() uint16 { return hdrInstSectionCount.Get(h) }

type ContainerHeaderData struct {
	Tag1             uint32
	Tag2             uint32
	Architecture     uint32
	FormatVersion    uint32
	DateTimeStamp    uint32
	OldDefVersion    uint32
	OldImpVersion    uint32
	CurrentVersion   uint32
	SectionCount     uint16
	InstSectionCount uint16
	ReservedA        uint32
}

func (h ContainerHeader) Decode() (d ContainerHeaderData, err error) {
	err = decode(h, &d)
	return
}

type SectionHeader []byte

var (
	secNameOffset      = view.I32{Off: 0, Order: be}
	secDefaultAddress  = view.U32{Off: 4, Order: be}
	secTotalSize       = view.U32{Off: 8, Order: be}
	secUnpackedSize    = view.U32{Off: 12, Order: be}
	secPackedSize      = view.U32{Off: 16, Order: be}
	secContainerOffset = view.U32{Off: 20, Order: be}
	secSectionKind     = view.U8{Off: 24}
	secShareKind       = view.U8{Off: 25}
	secAlignment       = view.U8{Off: 26}
)

func (s SectionHeader) NameOffset() int32       { return secNameOffset.Get(s) }
func (s SectionHeader) DefaultAddress() uint32  { return secDefaultAddress.Get(s) }
func (s SectionHeader) TotalSize() uint32       { return secTotalSize.Get(s) }
func (s SectionHeader) UnpackedSize() uint32    { return secUnpackedSize.Get(s) }
func (s SectionHeader) PackedSize() uint32      { return secPackedSize.Get(s) }
func (s SectionHeader) ContainerOffset() uint32 { return secContainerOffset.Get(s) }
func (s SectionHeader) Kind() SectionKind       { return SectionKind(secSectionKind.Get(s)) }
func (s SectionHeader) Share() ShareKind        { return ShareKind(secShareKind.Get(s)) }
func (s SectionHeader) Alignment() uint8        { return secAlignment.Get(s) }

type SectionHeaderData struct {
	NameOffset      int32
	DefaultAddress  uint32
	TotalSize       uint32
	UnpackedSize    uint32
	PackedSize      uint32
	ContainerOffset uint32
	SectionKind     uint8
	ShareKind       uint8
	Alignment       uint8
	ReservedA       uint8
}

func (s SectionHeader) Decode() (d SectionHeaderData, err error) {
	err = decode(s, &d)
	return
}

type LoaderInfoHeader []byte

var (
	ldrMainSection         = view.I32{Off: 0, Order: be}
	ldrMainOffset          = view.U32{Off: 4, Order: be}
	ldrInitSection         = view.I32{Off: 8, Order: be}
	ldrInitOffset          = view.U32{Off: 12, Order: be}
	ldrTermSection         = view.I32{Off: 16, Order: be}
	ldrTermOffset          = view.U32{Off: 20, Order: be}
	ldrImportedLibCount    = view.U32{Off: 24, Order: be}
	ldrImportedSymCount    = view.U32{Off: 28, Order: be}
	ldrRelocSectionCount   = view.U32{Off: 32, Order: be}
	ldrRelocInstrOffset    = view.U32{Off: 36, Order: be}
	ldrStringsOffset       = view.U32{Off: 40, Order: be}
	ldrExportHashOffset    = view.U32{Off: 44, Order: be}
	ldrExportHashPower     = view.U32{Off: 48, Order: be}
	ldrExportedSymbolCount = view.U32{Off: 52, Order: be}
)

func (l LoaderInfoHeader) MainSection() int32               { return ldrMainSection.Get(l) }
func (l LoaderInfoHeader) MainOffset() uint32               { return ldrMainOffset.Get(l) }
func (l LoaderInfoHeader) InitSection() int32               { return ldrInitSection.Get(l) }
func (l LoaderInfoHeader) InitOffset() uint32               { return ldrInitOffset.Get(l) }
func (l LoaderInfoHeader) TermSection() int32               { return ldrTermSection.Get(l) }
func (l LoaderInfoHeader) TermOffset() uint32               { return ldrTermOffset.Get(l) }
func (l LoaderInfoHeader) ImportedLibraryCount() uint32     { return ldrImportedLibCount.Get(l) }
func (l LoaderInfoHeader) TotalImportedSymbolCount() uint32 { return ldrImportedSymCount.Get(l) }
func (l LoaderInfoHeader) RelocSectionCount() uint32        { return ldrRelocSectionCount.Get(l) }
func (l LoaderInfoHeader) RelocInstrOffset() uint32         { return ldrRelocInstrOffset.Get(l) }
func (l LoaderInfoHeader) LoaderStringsOffset() uint32      { return ldrStringsOffset.Get(l) }
func (l LoaderInfoHeader) ExportHashOffset() uint32         { return ldrExportHashOffset.Get(l) }
func (l LoaderInfoHeader) ExportHashTablePower() uint32     { return ldrExportHashPower.Get(l) }
func (l LoaderInfoHeader) ExportedSymbolCount() uint32      { return ldrExportedSymbolCount.Get(l) }

type LoaderInfoHeaderData struct {
	MainSection              int32
	MainOffset               uint32
	InitSection              int32
	InitOffset               uint32
	TermSection              int32
	TermOffset               uint32
	ImportedLibraryCount     uint32
	TotalImportedSymbolCount uint32
	RelocSectionCount        uint32
	RelocInstrOffset         uint32
	LoaderStringsOffset      uint32
	ExportHashOffset         uint32
	ExportHashTablePower     uint32
	ExportedSymbolCount      uint32
}

func (l LoaderInfoHeader) Decode() (d LoaderInfoHeaderData, err error) {
	err = decode(l, &d)
	return
}

type ImportedLibrary []byte

var (
	libNameOffset          = view.U32{Off: 0, Order: be}
	libOldImpVersion       = view.U32{Off: 4, Order: be}
	libCurrentVersion      = view.U32{Off: 8, Order: be}
	libImportedSymbolCount = view.U32{Off: 12, Order: be}
	libFirstImportedSymbol = view.U32{Off: 16, Order: be}
	libOptions             = view.U8{Off: 20}
)

func (l ImportedLibrary) NameOffset() uint32          { return libNameOffset.Get(l) }
func (l ImportedLibrary) OldImpVersion() uint32       { return libOldImpVersion.Get(l) }
func (l ImportedLibrary) CurrentVersion() uint32      { return libCurrentVersion.Get(l) }
func (l ImportedLibrary) ImportedSymbolCount() uint32 { return libImportedSymbolCount.Get(l) }
func (l ImportedLibrary) FirstImportedSymbol() uint32 { return libFirstImportedSymbol.Get(l) }
func (l ImportedLibrary) Options() uint8              { return libOptions.Get(l) }
func (l ImportedLibrary) Weak() bool                  { return l.Options()&LibWeak != 0 }

type ImportedLibraryData struct {
	NameOffset          uint32
	OldImpVersion       uint32
	CurrentVersion      uint32
	ImportedSymbolCount uint32
	FirstImportedSymbol uint32
	Options             uint8
	ReservedA           uint8
	ReservedB           uint16
}

func (l ImportedLibrary) Decode() (d ImportedLibraryData, err error) {
	err = decode(l, &d)
	return
}

type ImportedSymbol []byte

var impClassAndName = view.U32{Off: 0, Order: be}

func (s ImportedSymbol) ClassAndName() uint32 { return impClassAndName.Get(s) }
func (s ImportedSymbol) Class() SymbolClass {
	return SymbolClass(s.ClassAndName()>>classShift) & classMask
}
func (s ImportedSymbol) Weak() bool         { return (s.ClassAndName()>>classShift)&weakImport != 0 }
func (s ImportedSymbol) NameOffset() uint32 { return s.ClassAndName() & nameOffsMask }

type RelocHeader []byte

var (
	relSectionIndex     = view.U16{Off: 0, Order: be}
	relRelocCount       = view.U32{Off: 4, Order: be}
	relFirstRelocOffset = view.U32{Off: 8, Order: be}
)

// SectionIndex is the 0-based number of the section being relocated.
func (r RelocHeader) SectionIndex() uint16 { return relSectionIndex.Get(r) }

// RelocCount is the length of the instruction stream in 16-bit chunks.
func (r RelocHeader) RelocCount() uint32       { return relRelocCount.Get(r) }
func (r RelocHeader) FirstRelocOffset() uint32 { return relFirstRelocOffset.Get(r) }

type RelocHeaderData struct {
	SectionIndex     uint16
	ReservedA        uint16
	RelocCount       uint32
	FirstRelocOffset uint32
}

func (r RelocHeader) Decode() (d RelocHeaderData, err error) {
	err = decode(r, &d)
	return
}

const (
	hashSlotCountShift = 18
	hashSlotFirstMask  = 0x0003ffff
	hashSlotMaxCount   = 0x00003fff
)

type ExportHashSlot []byte

var slotWord = view.U32{Off: 0, Order: be}

func (h ExportHashSlot) Word() uint32       { return slotWord.Get(h) }
func (h ExportHashSlot) ChainCount() uint32 { return h.Word() >> hashSlotCountShift }
func (h ExportHashSlot) FirstIndex() uint32 { return h.Word() & hashSlotFirstMask }

type ExportKey []byte

var keyWord = view.U32{Off: 0, Order: be}

func (k ExportKey) Word() uint32       { return keyWord.Get(k) }
func (k ExportKey) NameLength() uint32 { return k.Word() >> hashLengthShift }

type ExportedSymbol []byte

var (
	expClassAndName = view.U32{Off: 0, Order: be}
	expSymbolValue  = view.U32{Off: 4, Order: be}
	expSectionIndex = view.I16{Off: 8, Order: be}
)

func (e ExportedSymbol) ClassAndName() uint32 { return expClassAndName.Get(e) }
func (e ExportedSymbol) Class() SymbolClass {
	return SymbolClass(e.ClassAndName()>>classShift) & classMask
}
func (e ExportedSymbol) NameOffset() uint32  { return e.ClassAndName() & nameOffsMask }
func (e ExportedSymbol) Value() uint32       { return expSymbolValue.Get(e) }
func (e ExportedSymbol) SectionIndex() int16 { return expSectionIndex.Get(e) }

type ExportedSymbolData struct {
	ClassAndName uint32
	SymbolValue  uint32
	SectionIndex int16
}
