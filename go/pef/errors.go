package pef

import (
	"github.com/pkg/errors"

	"github.com/lunixbochs/pef/go/view"
)

var (
	ErrInvalidMagic            = errors.New("invalid PEF magic")
	ErrTooShort                = errors.New("buffer too short for PEF container header")
	ErrOutOfBounds             = view.ErrOutOfBounds
	ErrInconsistentImportTable = errors.New("imported libraries do not tile the imported symbol table")
	ErrInconsistentExportTable = errors.New("export hash table is inconsistent")
	ErrPatternTruncated        = errors.New("pattern program truncated")
	ErrPatternSizeMismatch     = errors.New("pattern program expands past unpacked size")
	ErrPatternInvalidOpcode    = errors.New("invalid pattern opcode")
	ErrInvalidIndex            = errors.New("index out of range")
	ErrNonUTF8Name             = errors.New("name is not valid UTF-8")
	ErrNoLoaderSection         = errors.New("no loader section")
	ErrInvalidRelocation       = errors.New("invalid relocation instruction")
	ErrRelocationOverflow      = errors.New("relocation stream produces too many directives")
	ErrRelocationBudget        = errors.New("relocation stream executes too many instructions")
)
