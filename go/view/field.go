package view

import "encoding/binary"

// Field descriptors locate a fixed-width field inside a record and carry the
// field's byte order. Record lengths are validated by One/Slice/Count, so Get
// never reads past the record.

type U8 struct {
	Off int
}

func (f U8) Get(p []byte) uint8 { return p[f.Off] }

type U16 struct {
	Off   int
	Order binary.ByteOrder
}

func (f U16) Get(p []byte) uint16 { return f.Order.Uint16(p[f.Off:]) }

type I16 struct {
	Off   int
	Order binary.ByteOrder
}

func (f I16) Get(p []byte) int16 { return int16(f.Order.Uint16(p[f.Off:])) }

type U32 struct {
	Off   int
	Order binary.ByteOrder
}

func (f U32) Get(p []byte) uint32 { return f.Order.Uint32(p[f.Off:]) }

type I32 struct {
	Off   int
	Order binary.ByteOrder
}

func (f I32) Get(p []byte) int32 { return int32(f.Order.Uint32(p[f.Off:])) }
