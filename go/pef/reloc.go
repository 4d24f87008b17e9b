package pef

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

// RelocOpcode identifies a relocation instruction by the top seven bits of
// its first chunk, normalized to the first value of its encoding group.
type RelocOpcode uint8

const (
	RelocBySectDWithSkip  RelocOpcode = 0x00
	RelocBySectC          RelocOpcode = 0x20
	RelocBySectD          RelocOpcode = 0x21
	RelocTVector12        RelocOpcode = 0x22
	RelocTVector8         RelocOpcode = 0x23
	RelocVTable8          RelocOpcode = 0x24
	RelocImportRun        RelocOpcode = 0x25
	RelocSmByImport       RelocOpcode = 0x30
	RelocSmSetSectC       RelocOpcode = 0x31
	RelocSmSetSectD       RelocOpcode = 0x32
	RelocSmBySection      RelocOpcode = 0x33
	RelocIncrPosition     RelocOpcode = 0x40
	RelocSmRepeat         RelocOpcode = 0x48
	RelocSetPosition      RelocOpcode = 0x50
	RelocLgByImport       RelocOpcode = 0x52
	RelocLgRepeat         RelocOpcode = 0x58
	RelocLgSetOrBySection RelocOpcode = 0x5a
)

var relocOpcodeNames = map[RelocOpcode]string{
	RelocBySectDWithSkip:  "BySectDWithSkip",
	RelocBySectC:          "BySectC",
	RelocBySectD:          "BySectD",
	RelocTVector12:        "TVector12",
	RelocTVector8:         "TVector8",
	RelocVTable8:          "VTable8",
	RelocImportRun:        "ImportRun",
	RelocSmByImport:       "SmByImport",
	RelocSmSetSectC:       "SmSetSectC",
	RelocSmSetSectD:       "SmSetSectD",
	RelocSmBySection:      "SmBySection",
	RelocIncrPosition:     "IncrPosition",
	RelocSmRepeat:         "SmRepeat",
	RelocSetPosition:      "SetPosition",
	RelocLgByImport:       "LgByImport",
	RelocLgRepeat:         "LgRepeat",
	RelocLgSetOrBySection: "LgSetOrBySection",
}

func (o RelocOpcode) String() string {
	if s, ok := relocOpcodeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("reloc(%#x)", uint8(o))
}

type RelocTarget uint8

const (
	// TargetSection adds the address of section Index.
	TargetSection RelocTarget = iota
	// TargetImport adds the address of imported symbol Index.
	TargetImport
)

func (t RelocTarget) String() string {
	if t == TargetImport {
		return "import"
	}
	return "section"
}

// Relocation is one load-time fixup: the 32-bit word at Offset in the
// section image is incremented by the address of the target.
type Relocation struct {
	Offset uint32
	Target RelocTarget
	Index  uint32
	Opcode RelocOpcode
}

type relocInstr struct {
	op    RelocOpcode
	sub   uint8
	chunk int
	a, b  uint32
}

const maxRepeatDepth = 32

// decodeRelocations splits a stream into instructions, remembering the
// chunk index each one starts at so repeats can address them.
func decodeRelocations(stream []byte) ([]relocInstr, error) {
	if len(stream)%2 != 0 {
		return nil, errors.Wrap(ErrInvalidRelocation, "odd stream length")
	}
	s := cryptobyte.String(stream)
	var out []relocInstr
	for chunk := 0; !s.Empty(); chunk++ {
		var c uint16
		s.ReadUint16(&c)
		ins := relocInstr{chunk: chunk}
		top := c >> 9
		// second chunk of the large forms
		var low uint16
		large := func() error {
			if !s.ReadUint16(&low) {
				return errors.Wrapf(ErrInvalidRelocation, "truncated instruction at chunk %d", ins.chunk)
			}
			chunk++
			return nil
		}
		switch {
		case top&0x60 == 0x00:
			ins.op = RelocBySectDWithSkip
			ins.a = uint32(c>>6) & 0xff
			ins.b = uint32(c) & 0x3f
		case top&0x70 == 0x20:
			ins.op = RelocBySectC + RelocOpcode(top&0xf)
			ins.a = uint32(c&0x1ff) + 1
			if ins.op > RelocImportRun {
				return nil, errors.Wrapf(ErrInvalidRelocation, "run subopcode %d at chunk %d", top&0xf, ins.chunk)
			}
		case top&0x70 == 0x30:
			ins.op = RelocSmByImport + RelocOpcode(top&0xf)
			ins.a = uint32(c & 0x1ff)
			if ins.op > RelocSmBySection {
				return nil, errors.Wrapf(ErrInvalidRelocation, "index subopcode %d at chunk %d", top&0xf, ins.chunk)
			}
		case top&0x78 == 0x40:
			ins.op = RelocIncrPosition
			ins.a = uint32(c&0x0fff) + 1
		case top&0x78 == 0x48:
			ins.op = RelocSmRepeat
			ins.a = uint32(c>>8)&0xf + 1
			ins.b = uint32(c&0xff) + 1
		case top&0x7e == 0x50:
			ins.op = RelocSetPosition
			if err := large(); err != nil {
				return nil, err
			}
			ins.a = uint32(c&0x3ff)<<16 | uint32(low)
		case top&0x7e == 0x52:
			ins.op = RelocLgByImport
			if err := large(); err != nil {
				return nil, err
			}
			ins.a = uint32(c&0x3ff)<<16 | uint32(low)
		case top&0x7e == 0x58:
			ins.op = RelocLgRepeat
			if err := large(); err != nil {
				return nil, err
			}
			ins.a = uint32(c>>6)&0xf + 1
			ins.b = uint32(c&0x3f)<<16 | uint32(low)
		case top&0x7e == 0x5a:
			ins.op = RelocLgSetOrBySection
			if err := large(); err != nil {
				return nil, err
			}
			ins.sub = uint8(c>>6) & 0xf
			ins.a = uint32(c&0x3f)<<16 | uint32(low)
			if ins.sub > 2 {
				return nil, errors.Wrapf(ErrInvalidRelocation, "LgSetOrBySection subopcode %d at chunk %d", ins.sub, ins.chunk)
			}
		default:
			return nil, errors.Wrapf(ErrInvalidRelocation, "opcode %#x at chunk %d", top, ins.chunk)
		}
		out = append(out, ins)
	}
	return out, nil
}

type relocState struct {
	ins    []relocInstr
	pos    uint32
	imp    uint32
	sectC  uint32
	sectD  uint32
	out    []Relocation
	max    int
	budget int
}

// InterpretRelocations runs a relocation instruction stream and returns the
// directives it describes, in execution order. limit bounds the number of
// directives (ErrRelocationOverflow). Instructions executed through repeats
// are bounded by 16*limit plus the stream length (ErrRelocationBudget), which
// only a stream spinning on non-emitting instructions can reach.
func InterpretRelocations(stream []byte, limit int) ([]Relocation, error) {
	ins, err := decodeRelocations(stream)
	if err != nil {
		return nil, err
	}
	st := &relocState{
		ins:    ins,
		sectD:  1,
		max:    limit,
		budget: 16*limit + len(ins),
	}
	if err := st.run(0, len(ins), 0); err != nil {
		return nil, err
	}
	return st.out, nil
}

func (st *relocState) emit(target RelocTarget, index uint32, op RelocOpcode) error {
	if len(st.out) >= st.max {
		return errors.Wrapf(ErrRelocationOverflow, "limit %d", st.max)
	}
	st.out = append(st.out, Relocation{Offset: st.pos, Target: target, Index: index, Opcode: op})
	st.pos += 4
	return nil
}

func (st *relocState) run(from, to, depth int) error {
	for k := from; k < to; k++ {
		if st.budget--; st.budget < 0 {
			return errors.Wrapf(ErrRelocationBudget, "more than %d instructions", 16*st.max+len(st.ins))
		}
		if err := st.exec(k, depth); err != nil {
			return err
		}
	}
	return nil
}

func (st *relocState) exec(k, depth int) error {
	in := st.ins[k]
	var err error
	switch in.op {
	case RelocBySectDWithSkip:
		st.pos += in.a * 4
		for i := uint32(0); i < in.b && err == nil; i++ {
			err = st.emit(TargetSection, st.sectD, in.op)
		}
	case RelocBySectC, RelocBySectD:
		sect := st.sectC
		if in.op == RelocBySectD {
			sect = st.sectD
		}
		for i := uint32(0); i < in.a && err == nil; i++ {
			err = st.emit(TargetSection, sect, in.op)
		}
	case RelocTVector12, RelocTVector8:
		for i := uint32(0); i < in.a && err == nil; i++ {
			if err = st.emit(TargetSection, st.sectC, in.op); err == nil {
				err = st.emit(TargetSection, st.sectD, in.op)
			}
			if in.op == RelocTVector12 {
				st.pos += 4
			}
		}
	case RelocVTable8:
		for i := uint32(0); i < in.a && err == nil; i++ {
			err = st.emit(TargetSection, st.sectD, in.op)
			st.pos += 4
		}
	case RelocImportRun:
		for i := uint32(0); i < in.a && err == nil; i++ {
			err = st.emit(TargetImport, st.imp, in.op)
			st.imp++
		}
	case RelocSmByImport, RelocLgByImport:
		err = st.emit(TargetImport, in.a, in.op)
		st.imp = in.a + 1
	case RelocSmSetSectC:
		st.sectC = in.a
	case RelocSmSetSectD:
		st.sectD = in.a
	case RelocSmBySection:
		err = st.emit(TargetSection, in.a, in.op)
	case RelocLgSetOrBySection:
		switch in.sub {
		case 0:
			err = st.emit(TargetSection, in.a, in.op)
		case 1:
			st.sectC = in.a
		case 2:
			st.sectD = in.a
		}
	case RelocIncrPosition:
		st.pos += in.a
	case RelocSetPosition:
		st.pos = in.a
	case RelocSmRepeat, RelocLgRepeat:
		// SmRepeat stores count-1, LgRepeat the count itself; decode
		// normalized both into b
		return st.repeat(k, int(in.a), in.b, depth)
	}
	return err
}

// repeat re-executes the instructions covering the blockCount chunks that
// precede instruction k.
func (st *relocState) repeat(k, blockCount int, repeats uint32, depth int) error {
	if depth >= maxRepeatDepth {
		return errors.Wrapf(ErrInvalidRelocation, "repeats nested deeper than %d", maxRepeatDepth)
	}
	start := st.ins[k].chunk - blockCount
	j := k
	for j > 0 && st.ins[j-1].chunk >= start {
		j--
	}
	if start < 0 || st.ins[j].chunk != start {
		return errors.Wrapf(ErrInvalidRelocation, "repeat of %d chunks at chunk %d does not start on an instruction", blockCount, st.ins[k].chunk)
	}
	for r := uint32(0); r < repeats; r++ {
		if err := st.run(j, k, depth+1); err != nil {
			return err
		}
	}
	return nil
}
