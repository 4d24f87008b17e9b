// Package pef reads the Preferred Executable Format used by the Code Fragment
// Manager on classic Mac OS (PowerPC and CFM-68K).
//
// All structures are big-endian. Parsed values are views into the caller's
// buffer; the only copies made are pattern-initialized data expansions and
// section images.
package pef

import (
	"encoding/binary"
	"fmt"
)

var be = binary.BigEndian

const (
	Tag1 uint32 = 0x4A6F7921 // "Joy!"
	Tag2 uint32 = 0x70656666 // "peff"

	ArchPowerPC uint32 = 0x70777063 // "pwpc"
	Arch68K     uint32 = 0x6D36386B // "m68k"
)

// Sentinel section numbers.
const (
	NoSection         = -1
	AbsoluteSection   = -2
	ReexportedSection = -3
)

type Architecture int

const (
	ArchitectureUnknown Architecture = iota
	ArchitecturePowerPC
	Architecture68K
)

func (a Architecture) String() string {
	switch a {
	case ArchitecturePowerPC:
		return "ppc"
	case Architecture68K:
		return "m68k"
	default:
		return "unknown"
	}
}

type SectionKind uint8

const (
	KindCode SectionKind = iota
	KindUnpackedData
	KindPatternInitializedData
	KindConstant
	KindLoader
	KindDebug
	KindExecutableData
	KindException
	KindTraceback
)

var sectionKindNames = []string{
	"code", "unpacked-data", "pattern-data", "constant", "loader",
	"debug", "executable-data", "exception", "traceback",
}

func (k SectionKind) String() string {
	if int(k) < len(sectionKindNames) {
		return sectionKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Instantiated reports whether sections of this kind are loaded into memory.
func (k SectionKind) Instantiated() bool {
	switch k {
	case KindCode, KindUnpackedData, KindPatternInitializedData, KindConstant, KindExecutableData:
		return true
	}
	return false
}

type ShareKind uint8

const (
	ShareProcess   ShareKind = 1
	ShareGlobal    ShareKind = 4
	ShareProtected ShareKind = 5
)

func (s ShareKind) String() string {
	switch s {
	case ShareProcess:
		return "process"
	case ShareGlobal:
		return "global"
	case ShareProtected:
		return "protected"
	}
	return fmt.Sprintf("share(%d)", uint8(s))
}

type SymbolClass uint8

const (
	ClassCode      SymbolClass = 0
	ClassData      SymbolClass = 1
	ClassTVector   SymbolClass = 2
	ClassTOC       SymbolClass = 3
	ClassGlue      SymbolClass = 4
	ClassUndefined SymbolClass = 15

	classMask    = 0x0f
	weakImport   = 0x80
	classShift   = 24
	nameOffsMask = 0x00ffffff
)

func (c SymbolClass) String() string {
	switch c {
	case ClassCode:
		return "code"
	case ClassData:
		return "data"
	case ClassTVector:
		return "tvector"
	case ClassTOC:
		return "toc"
	case ClassGlue:
		return "glue"
	case ClassUndefined:
		return "undefined"
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// Imported library options.
const (
	LibInitBefore uint8 = 0x80
	LibWeak       uint8 = 0x40
)
