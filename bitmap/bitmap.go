// Package bitmap wraps the compressed roaring bitmap used everywhere a
// secondary index, a query result, or a task-to-task relationship (matched
// tasks, canceled tasks) needs to be represented as a set of task uids. It
// exists so that the rest of this module depends on one name
// (bitmap.Bitmap) instead of sprinkling github.com/RoaringBitmap/roaring/v2
// through every package, and so the on-disk serialization used by the task
// store lives in exactly one place.
package bitmap

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Bitmap is a set of uint32 task uids, backed by a compressed roaring
// bitmap. The zero value is not usable; use New.
type Bitmap struct {
	rb *roaring.Bitmap
}

// New returns a bitmap holding the given uids (empty when none are given).
func New(uids ...uint32) *Bitmap {
	rb := roaring.New()
	rb.AddMany(uids)
	return &Bitmap{rb: rb}
}

// FromRoaring wraps an already-constructed roaring bitmap without copying.
func FromRoaring(rb *roaring.Bitmap) *Bitmap {
	if rb == nil {
		rb = roaring.New()
	}
	return &Bitmap{rb: rb}
}

// Roaring exposes the underlying roaring bitmap for callers (store's
// codec) that need direct access to serialize or run bulk set algebra.
func (b *Bitmap) Roaring() *roaring.Bitmap { return b.rb }

func (b *Bitmap) Add(uid uint32)      { b.rb.Add(uid) }
func (b *Bitmap) Remove(uid uint32)   { b.rb.Remove(uid) }
func (b *Bitmap) Contains(uid uint32) bool { return b.rb.Contains(uid) }
func (b *Bitmap) IsEmpty() bool       { return b.rb.IsEmpty() }
func (b *Bitmap) Len() uint64         { return b.rb.GetCardinality() }
func (b *Bitmap) ToArray() []uint32   { return b.rb.ToArray() }
func (b *Bitmap) Clone() *Bitmap      { return &Bitmap{rb: b.rb.Clone()} }
func (b *Bitmap) Minimum() uint32     { return b.rb.Minimum() }
func (b *Bitmap) Maximum() uint32     { return b.rb.Maximum() }

// And returns the intersection of b and other, without mutating either.
func (b *Bitmap) And(other *Bitmap) *Bitmap {
	return &Bitmap{rb: roaring.And(b.rb, other.rb)}
}

// Or returns the union of b and other, without mutating either.
func (b *Bitmap) Or(other *Bitmap) *Bitmap {
	return &Bitmap{rb: roaring.Or(b.rb, other.rb)}
}

// AndNot returns the elements of b not present in other, without mutating
// either.
func (b *Bitmap) AndNot(other *Bitmap) *Bitmap {
	return &Bitmap{rb: roaring.AndNot(b.rb, other.rb)}
}

// Iterate calls fn for every uid in increasing order, stopping early if fn
// returns false.
func (b *Bitmap) Iterate(fn func(uid uint32) bool) {
	it := b.rb.Iterator()
	for it.HasNext() {
		if !fn(it.Next()) {
			return
		}
	}
}

// MarshalBinary implements the stable on-disk roaring serialization used
// for every secondary-index bitmap value.
func (b *Bitmap) MarshalBinary() ([]byte, error) {
	return b.rb.ToBytes()
}

// UnmarshalBinary reconstructs a bitmap previously produced by
// MarshalBinary.
func (b *Bitmap) UnmarshalBinary(data []byte) error {
	rb := roaring.New()
	if len(data) > 0 {
		if err := rb.UnmarshalBinary(data); err != nil {
			return err
		}
	}
	b.rb = rb
	return nil
}

// Union computes the union of several bitmaps, returning an empty bitmap
// for zero inputs.
func Union(bitmaps ...*Bitmap) *Bitmap {
	rbs := make([]*roaring.Bitmap, 0, len(bitmaps))
	for _, b := range bitmaps {
		if b != nil {
			rbs = append(rbs, b.rb)
		}
	}
	return &Bitmap{rb: roaring.FastOr(rbs...)}
}
