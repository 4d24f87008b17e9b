package pef

import (
	"math"
	"math/bits"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

// Pattern opcodes, stored in the top three bits of each instruction byte.
const (
	PatternZero = iota
	PatternBlockCopy
	PatternRepeatedBlock
	PatternInterleaveBlockCopy
	PatternInterleaveZero
)

const (
	patternOpShift  = 5
	patternCountMax = 0x1f
)

type expander struct {
	prog cryptobyte.String
	out  []byte
	size uint64
}

// ExpandPattern runs a pattern-initialized data program and returns exactly
// unpackedSize bytes. The result is a new allocation; it is the only place the
// reader copies section contents. Decoding stops as soon as unpackedSize
// bytes have been produced.
func ExpandPattern(program []byte, unpackedSize uint32) ([]byte, error) {
	if unpackedSize > MaxImageSize {
		return nil, errors.Errorf("unpacked size %#x exceeds limit", unpackedSize)
	}
	e := &expander{
		prog: cryptobyte.String(program),
		out:  make([]byte, 0, unpackedSize),
		size: uint64(unpackedSize),
	}
	for uint64(len(e.out)) < e.size {
		at := len(program) - len(e.prog)
		if err := e.step(); err != nil {
			return nil, errors.Wrapf(err, "pattern instruction at %#x", at)
		}
	}
	return e.out, nil
}

func (e *expander) step() error {
	var ins uint8
	if !e.prog.ReadUint8(&ins) {
		return errors.Wrapf(ErrPatternTruncated, "program ended after %#x of %#x bytes", len(e.out), e.size)
	}
	op := ins >> patternOpShift
	count := uint64(ins & patternCountMax)
	if count == 0 {
		var err error
		if count, err = e.arg(); err != nil {
			return err
		}
	}
	switch op {
	case PatternZero:
		return e.zero(count)
	case PatternBlockCopy:
		p, err := e.data(count)
		if err != nil {
			return err
		}
		return e.emit(p)
	case PatternRepeatedBlock:
		repeat, err := e.arg()
		if err != nil {
			return err
		}
		p, err := e.data(count)
		if err != nil {
			return err
		}
		if err := e.reserve(product(count, repeat+1)); err != nil || count == 0 {
			return err
		}
		for i := uint64(0); i <= repeat; i++ {
			e.out = append(e.out, p...)
		}
		return nil
	case PatternInterleaveBlockCopy, PatternInterleaveZero:
		customSize, err := e.arg()
		if err != nil {
			return err
		}
		repeat, err := e.arg()
		if err != nil {
			return err
		}
		if err := e.reserve(count, product(repeat, customSize+count)); err != nil {
			return err
		}
		var common []byte
		if op == PatternInterleaveBlockCopy {
			if common, err = e.data(count); err != nil {
				return err
			}
		} else {
			common = make([]byte, count)
		}
		e.out = append(e.out, common...)
		if customSize+count == 0 {
			return nil
		}
		for i := uint64(0); i < repeat; i++ {
			custom, err := e.data(customSize)
			if err != nil {
				return err
			}
			e.out = append(e.out, custom...)
			e.out = append(e.out, common...)
		}
		return nil
	}
	return errors.Wrapf(ErrPatternInvalidOpcode, "opcode %d", op)
}

// arg reads a variable-length argument: 7 bits per byte, most significant
// first, high bit set on every byte but the last.
func (e *expander) arg() (uint64, error) {
	var v uint64
	for {
		var b uint8
		if !e.prog.ReadUint8(&b) {
			return 0, errors.Wrap(ErrPatternTruncated, "argument")
		}
		v = v<<7 | uint64(b&0x7f)
		if v > 0xffffffff {
			return 0, errors.Wrap(ErrPatternSizeMismatch, "argument exceeds 32 bits")
		}
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

func (e *expander) data(n uint64) ([]byte, error) {
	var p []byte
	if n > uint64(len(e.prog)) || !e.prog.ReadBytes(&p, int(n)) {
		return nil, errors.Wrapf(ErrPatternTruncated, "%#x data bytes, %#x left", n, len(e.prog))
	}
	return p, nil
}

// reserve checks that the output has room for the sum of sizes.
func (e *expander) reserve(sizes ...uint64) error {
	left := e.size - uint64(len(e.out))
	var n uint64
	for _, s := range sizes {
		if s > left-n {
			return errors.Wrapf(ErrPatternSizeMismatch, "instruction overruns output at offset %#x of %#x", len(e.out), e.size)
		}
		n += s
	}
	return nil
}

// product saturates instead of overflowing.
func product(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

func (e *expander) emit(p []byte) error {
	if err := e.reserve(uint64(len(p))); err != nil {
		return err
	}
	e.out = append(e.out, p...)
	return nil
}

func (e *expander) zero(n uint64) error {
	if err := e.reserve(n); err != nil {
		return err
	}
	e.out = append(e.out, make([]byte, n)...)
	return nil
}
