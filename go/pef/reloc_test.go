package pef_test

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/pkg/errors"

	"github.com/lunixbochs/pef/go/pef"
)

func stream(chunks ...uint16) []byte {
	p := make([]byte, 2*len(chunks))
	for i, c := range chunks {
		binary.BigEndian.PutUint16(p[2*i:], c)
	}
	return p
}

type reloc struct {
	off    uint32
	target pef.RelocTarget
	index  uint32
}

func sect(off, index uint32) reloc { return reloc{off, pef.TargetSection, index} }
func imp(off, index uint32) reloc  { return reloc{off, pef.TargetImport, index} }

func interpret(t *testing.T, chunks ...uint16) []reloc {
	t.Helper()
	relocs, err := pef.InterpretRelocations(stream(chunks...), pef.DefaultMaxRelocations)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]reloc, len(relocs))
	for i, r := range relocs {
		out[i] = reloc{r.Offset, r.Target, r.Index}
	}
	return out
}

func TestRelocOpcodes(t *testing.T) {
	for _, tt := range []struct {
		name   string
		chunks []uint16
		want   []reloc
	}{
		{"BySectDWithSkip", []uint16{0x0042}, []reloc{sect(4, 1), sect(8, 1)}},
		{"BySectC", []uint16{0x4002}, []reloc{sect(0, 0), sect(4, 0), sect(8, 0)}},
		{"BySectD", []uint16{0x4200}, []reloc{sect(0, 1)}},
		{"TVector12", []uint16{0x4401}, []reloc{sect(0, 0), sect(4, 1), sect(12, 0), sect(16, 1)}},
		{"TVector8", []uint16{0x4601}, []reloc{sect(0, 0), sect(4, 1), sect(8, 0), sect(12, 1)}},
		{"VTable8", []uint16{0x4801}, []reloc{sect(0, 1), sect(8, 1)}},
		{"ImportRun", []uint16{0x4a01}, []reloc{imp(0, 0), imp(4, 1)}},
		{"SmByImport", []uint16{0x6005, 0x4a00}, []reloc{imp(0, 5), imp(4, 6)}},
		{"SmSetSectC", []uint16{0x6203, 0x4000}, []reloc{sect(0, 3)}},
		{"SmSetSectD", []uint16{0x6404, 0x4200}, []reloc{sect(0, 4)}},
		{"SmBySection", []uint16{0x6602}, []reloc{sect(0, 2)}},
		{"IncrPosition", []uint16{0x800f, 0x4000}, []reloc{sect(16, 0)}},
		{"SetPosition", []uint16{0xa001, 0x0100, 0x4000}, []reloc{sect(0x10100, 0)}},
		{"LgByImport", []uint16{0xa400, 0x0007, 0x4a00}, []reloc{imp(0, 7), imp(4, 8)}},
		{"LgBySection", []uint16{0xb400, 0x0003}, []reloc{sect(0, 3)}},
		{"LgSetSectC", []uint16{0xb440, 0x0002, 0x4000}, []reloc{sect(0, 2)}},
		{"LgSetSectD", []uint16{0xb480, 0x0005, 0x4200}, []reloc{sect(0, 5)}},
	} {
		if got := interpret(t, tt.chunks...); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRelocRepeat(t *testing.T) {
	got := interpret(t, 0x4000, 0x9001)
	if want := []reloc{sect(0, 0), sect(4, 0), sect(8, 0)}; !reflect.DeepEqual(got, want) {
		t.Fatalf("SmRepeat: %v", got)
	}
	got = interpret(t, 0x4a00, 0x8003, 0xb040, 0x0002)
	want := []reloc{imp(0, 0), imp(8, 1), imp(16, 2)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("LgRepeat: %v", got)
	}
	// a repeat inside a repeated block
	got = interpret(t, 0x4000, 0x9000, 0x9101)
	if len(got) != 6 || got[5].off != 20 {
		t.Fatalf("nested repeat: %v", got)
	}
}

func TestRelocInvalid(t *testing.T) {
	for name, p := range map[string][]byte{
		"odd length":       {0x40},
		"unknown opcode":   stream(0xc000),
		"run subopcode":    stream(0x4c00),
		"index subopcode":  stream(0x6800),
		"lg subopcode":     stream(0xb4c0, 0x0000),
		"truncated large":  stream(0xa000),
		"repeat before":    stream(0x4000, 0x9100),
		"repeat mid-instr": stream(0xa000, 0x0010, 0x9000),
		"lg repeat mid":    stream(0xa400, 0x0001, 0xb000, 0x0001),
	} {
		if _, err := pef.InterpretRelocations(p, 100); !errors.Is(err, pef.ErrInvalidRelocation) {
			t.Errorf("%s: expected ErrInvalidRelocation, got %v", name, err)
		}
	}
}

func TestRelocOverflow(t *testing.T) {
	if _, err := pef.InterpretRelocations(stream(0x41ff), 100); !errors.Is(err, pef.ErrRelocationOverflow) {
		t.Fatalf("run: expected ErrRelocationOverflow, got %v", err)
	}
	// 0x3fffff repetitions of a 512-entry run
	_, err := pef.InterpretRelocations(stream(0x41ff, 0xb03f, 0xffff), pef.DefaultMaxRelocations)
	if !errors.Is(err, pef.ErrRelocationOverflow) {
		t.Fatalf("repeat: expected ErrRelocationOverflow, got %v", err)
	}
	// repeats of a block that emits nothing still terminate
	_, err = pef.InterpretRelocations(stream(0x8000, 0xb03f, 0xffff), 1000)
	if !errors.Is(err, pef.ErrRelocationBudget) || errors.Is(err, pef.ErrRelocationOverflow) {
		t.Fatalf("empty repeat: expected ErrRelocationBudget, got %v", err)
	}
}

func TestRelocBudget(t *testing.T) {
	// limit 1 allows 16 executions plus one per instruction: 15 repeats of
	// IncrPosition fit, 256 do not
	relocs, err := pef.InterpretRelocations(stream(0x8000, 0xb000, 0x000f, 0x4000), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(relocs) != 1 || relocs[0].Offset != 16 {
		t.Fatalf("unexpected relocations %+v", relocs)
	}
	_, err = pef.InterpretRelocations(stream(0x8000, 0xb000, 0x0100), 1)
	if !errors.Is(err, pef.ErrRelocationBudget) {
		t.Fatalf("expected ErrRelocationBudget, got %v", err)
	}
	if errors.Is(err, pef.ErrRelocationOverflow) {
		t.Fatal("budget exhaustion reported as directive overflow")
	}
}
