package ckpt

import (
	"encoding/binary"
	"fmt"
)

// Region is a block of process memory registered with Protect. Regions are
// encoded little-endian with no padding and written in id order.
type Region interface {
	// Size is the encoded size in bytes.
	Size() int

	// AppendTo appends the encoded region to dst.
	AppendTo(dst []byte) []byte

	// Decode overwrites the region from src, which holds exactly Size bytes.
	Decode(src []byte) error
}

type int32Region struct {
	p *int32
}

// Int32 registers a single int32.
func Int32(p *int32) Region {
	return int32Region{p: p}
}

func (r int32Region) Size() int { return 4 }

func (r int32Region) AppendTo(dst []byte) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(*r.p))
}

func (r int32Region) Decode(src []byte) error {
	if len(src) != 4 {
		return fmt.Errorf("int32 region: got %d bytes", len(src))
	}
	*r.p = int32(binary.LittleEndian.Uint32(src))
	return nil
}

type int64sRegion struct {
	s []int64
}

// Int64s registers the elements of s. The region covers the slice as it is
// at registration; after reallocating, protect it again.
func Int64s(s []int64) Region {
	return int64sRegion{s: s}
}

func (r int64sRegion) Size() int { return 8 * len(r.s) }

func (r int64sRegion) AppendTo(dst []byte) []byte {
	for _, v := range r.s {
		dst = binary.LittleEndian.AppendUint64(dst, uint64(v))
	}
	return dst
}

func (r int64sRegion) Decode(src []byte) error {
	if len(src) != r.Size() {
		return fmt.Errorf("int64 region of %d elements: got %d bytes", len(r.s), len(src))
	}
	for i := range r.s {
		r.s[i] = int64(binary.LittleEndian.Uint64(src[8*i:]))
	}
	return nil
}
