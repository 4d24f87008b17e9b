package pef_test

import (
	"testing"

	"github.com/lunixbochs/pef/go/pef"
	"github.com/lunixbochs/pef/go/pef/peftest"
)

func TestHashWord(t *testing.T) {
	for name, want := range map[string]uint32{
		"":             0x00000000,
		"a":            0x00010061,
		"main":         0x00040250,
		"entry":        0x0005046d,
		"__start":      0x000719a4,
		"DrawString":   0x000ad8ef,
		"InterfaceLib": 0x000c5538,
	} {
		if got := pef.HashWord([]byte(name)); got != want {
			t.Errorf("HashWord(%q) = %#08x, want %#08x", name, got, want)
		}
	}
	if pef.HashWord([]byte("main\x00junk")) != pef.HashWord([]byte("main")) {
		t.Error("hashing did not stop at NUL")
	}
}

func TestHashSlot(t *testing.T) {
	for _, name := range []string{"a", "entry", "DrawString"} {
		if s := pef.HashSlot(pef.HashWord([]byte(name)), 0); s != 0 {
			t.Errorf("%s: slot %d in a one-slot table", name, s)
		}
	}
	for name, want := range map[string]uint32{
		"alpha": 1,
		"beta":  2,
		"delta": 1,
		"kappa": 3,
	} {
		if s := pef.HashSlot(pef.HashWord([]byte(name)), 2); s != want {
			t.Errorf("%s: slot %d, want %d", name, s, want)
		}
	}
	slot := pef.ExportHashSlot{0x00, 0x0c, 0x00, 0x02}
	if slot.ChainCount() != 3 || slot.FirstIndex() != 2 {
		t.Errorf("slot %#08x: count %d first %d", slot.Word(), slot.ChainCount(), slot.FirstIndex())
	}
	if s := pef.HashSlot(slot.Word(), 2); s != (0x000c0002^0x000c0002>>2)&3 {
		t.Errorf("slot of %#08x: %d", slot.Word(), s)
	}
}

// Slot 0 stays empty, slot 3 holds one export, slots 1 and 2 hold two.
var chainedExports = []peftest.Export{
	{Name: "alpha", Class: pef.ClassTVector, Section: 1, Value: 0x00},
	{Name: "beta", Class: pef.ClassTVector, Section: 1, Value: 0x08},
	{Name: "gamma", Class: pef.ClassData, Section: 1, Value: 0x10},
	{Name: "delta", Class: pef.ClassCode, Section: 0, Value: 0x20},
	{Name: "kappa", Class: pef.ClassData, Section: pef.AbsoluteSection, Value: 0xdead},
}

func TestLookupExportChains(t *testing.T) {
	ldr := parseLoader(t, &peftest.Loader{Exports: chainedExports, HashPower: 2})
	exports, err := ldr.Exports()
	if err != nil {
		t.Fatal(err)
	}
	perSlot := make(map[uint32]int)
	for _, e := range exports {
		perSlot[e.Slot]++
	}
	if perSlot[0] != 0 || perSlot[1] != 2 || perSlot[2] != 2 || perSlot[3] != 1 {
		t.Fatalf("unexpected chain lengths %v", perSlot)
	}
	for _, want := range chainedExports {
		e, ok, err := ldr.LookupExport([]byte(want.Name))
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("%s: not found", want.Name)
			continue
		}
		if string(e.Name) != want.Name || e.Section != want.Section || e.Value != want.Value || e.Class != want.Class {
			t.Errorf("%s: got %+v", want.Name, e)
		}
	}
	// misses in an empty slot, a single-entry slot, and a two-entry slot
	for _, name := range []string{"missing", "alph", "alphaa", "kapp", "gamm", "", "beta\x00"} {
		if e, ok, err := ldr.LookupExport([]byte(name)); ok || err != nil {
			t.Errorf("%q: false positive %+v %v", name, e, err)
		}
	}
}
