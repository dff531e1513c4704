package algorithm

import (
	"github.com/spaolacci/murmur3"

	"github.com/devrev/pairdb/placement/internal/model"
)

// Partitioner maps partition keys to ring tokens
type Partitioner interface {
	Token(key []byte) model.Token
}

// Murmur3Partitioner takes the first 64 bits of the x64 128-bit Murmur3 hash
type Murmur3Partitioner struct{}

// NewMurmur3Partitioner creates a new partitioner
func NewMurmur3Partitioner() *Murmur3Partitioner {
	return &Murmur3Partitioner{}
}

// Token computes the token for key. MinToken is reserved as the ring's
// lower bound, so a key hashing to it is moved to MaxToken.
func (p *Murmur3Partitioner) Token(key []byte) model.Token {
	h1, _ := murmur3.Sum128(key)
	token := model.Token(int64(h1))
	if token == model.MinToken {
		return model.MaxToken
	}
	return token
}

// TokenForString is Token for string keys
func (p *Murmur3Partitioner) TokenForString(key string) model.Token {
	return p.Token([]byte(key))
}
