package model

import (
	"fmt"
	"math"
)

// Endpoint identifies a storage node by its host:port address
type Endpoint string

// Token is a position in the Murmur3 partition key space
type Token int64

const (
	// MinToken is the smallest token; it is never assigned to a key
	MinToken Token = math.MinInt64
	// MaxToken is the largest token
	MaxToken Token = math.MaxInt64
)

// TokenRange represents the hash range (Start, End]. A range whose Start
// is not below its End wraps around the ring; Start == End is the full ring.
type TokenRange struct {
	Start Token `json:"start"`
	End   Token `json:"end"`
}

// FullRing returns the range covering every token
func FullRing() TokenRange {
	return TokenRange{Start: MinToken, End: MinToken}
}

// IsWrapAround reports whether the range crosses the end of the ring
func (r TokenRange) IsWrapAround() bool {
	return r.Start >= r.End
}

// IsFullRing reports whether the range covers every token
func (r TokenRange) IsFullRing() bool {
	return r.Start == r.End
}

// Contains checks whether token lies in (Start, End]
func (r TokenRange) Contains(t Token) bool {
	if r.IsFullRing() {
		return true
	}
	if r.Start < r.End {
		return t > r.Start && t <= r.End
	}
	return t > r.Start || t <= r.End
}

// ContainsRange checks whether other lies entirely inside r
func (r TokenRange) ContainsRange(other TokenRange) bool {
	if r.IsFullRing() {
		return true
	}
	if other.IsFullRing() {
		return false
	}
	if r == other {
		return true
	}
	if !r.IsWrapAround() {
		return !other.IsWrapAround() && other.Start >= r.Start && other.End <= r.End
	}
	if !other.IsWrapAround() {
		// other must sit entirely on one side of the wrap point
		return other.Start >= r.Start || other.End <= r.End
	}
	return other.Start >= r.Start && other.End <= r.End
}

// Adjacent reports whether next starts where r ends
func (r TokenRange) Adjacent(next TokenRange) bool {
	return r.End == next.Start
}

// Span returns the range running from the start of r to the end of next.
// It is only meaningful when r and next are adjacent.
func (r TokenRange) Span(next TokenRange) TokenRange {
	return TokenRange{Start: r.Start, End: next.End}
}

// String renders the range in (start,end] notation
func (r TokenRange) String() string {
	return fmt.Sprintf("(%d,%d]", r.Start, r.End)
}

// Epoch is a monotonically increasing topology version
type Epoch uint64

const (
	// EpochEmpty is the epoch of a cluster with no published metadata
	EpochEmpty Epoch = 0
	// EpochFirst is the first published epoch
	EpochFirst Epoch = 1
)

// Next returns the following epoch
func (e Epoch) Next() Epoch {
	return e + 1
}

// IsAfter reports whether e is strictly newer than other
func (e Epoch) IsAfter(other Epoch) bool {
	return e > other
}
