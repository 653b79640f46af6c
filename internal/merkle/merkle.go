// Package merkle builds the weekly reward commitment: a keccak-256 binary
// tree over per-user payout leaves, with canonical sorted-pair combination
// so proofs verify without positional bits.
package merkle

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Hash is a 32-byte keccak-256 digest.
type Hash [32]byte

var ErrNoLeaves = errors.New("merkle: no leaves")

func keccak256(parts ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// LeafHash hashes one aggregated payout with the fixed on-chain encoding:
// u32le(index) || wallet (32 bytes) || u64le(amountMicro).
func LeafHash(index uint32, wallet [32]byte, amountMicro uint64) Hash {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)
	var amt [8]byte
	binary.LittleEndian.PutUint64(amt[:], amountMicro)
	return keccak256(idx[:], wallet[:], amt[:])
}

// parent combines two nodes in canonical order: the smaller hash always
// comes first, removing left/right ambiguity from proofs.
func parent(a, b Hash) Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return keccak256(a[:], b[:])
}

// Tree holds every layer from leaves to root. Odd layers are padded by
// duplicating the last node.
type Tree struct {
	layers [][]Hash
}

// Build constructs the tree over the given leaf hashes.
func Build(leaves []Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}
	layers := [][]Hash{append([]Hash(nil), leaves...)}
	for len(layers[len(layers)-1]) > 1 {
		prev := layers[len(layers)-1]
		next := make([]Hash, 0, (len(prev)+1)/2)
		for i := 0; i < len(prev); i += 2 {
			left := prev[i]
			right := left // duplicate last if odd
			if i+1 < len(prev) {
				right = prev[i+1]
			}
			next = append(next, parent(left, right))
		}
		layers = append(layers, next)
	}
	return &Tree{layers: layers}, nil
}

// Root returns the committed root hash.
func (t *Tree) Root() Hash {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// Proof returns the sibling list for the leaf at index i.
func (t *Tree) Proof(i int) ([]Hash, error) {
	if i < 0 || i >= len(t.layers[0]) {
		return nil, fmt.Errorf("merkle: leaf index %d out of range", i)
	}
	proof := make([]Hash, 0, len(t.layers)-1)
	idx := i
	for layer := 0; layer < len(t.layers)-1; layer++ {
		nodes := t.layers[layer]
		sibling := idx ^ 1
		if sibling >= len(nodes) {
			sibling = idx // duplicated-last pairing
		}
		proof = append(proof, nodes[sibling])
		idx /= 2
	}
	return proof, nil
}

// Verify recomputes the root from a leaf and its proof using the same
// sorted-pair rule. No leaf index is needed.
func Verify(leaf Hash, proof []Hash, root Hash) bool {
	node := leaf
	for _, sibling := range proof {
		node = parent(node, sibling)
	}
	return node == root
}

// EncodeProof serializes a proof as comma-joined lowercase hex.
func EncodeProof(proof []Hash) string {
	parts := make([]string, len(proof))
	for i, h := range proof {
		parts[i] = hex.EncodeToString(h[:])
	}
	return strings.Join(parts, ",")
}

// DecodeProof parses the serialization produced by EncodeProof.
func DecodeProof(s string) ([]Hash, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	proof := make([]Hash, len(parts))
	for i, p := range parts {
		raw, err := hex.DecodeString(p)
		if err != nil {
			return nil, fmt.Errorf("merkle: bad proof element %d: %w", i, err)
		}
		if len(raw) != 32 {
			return nil, fmt.Errorf("merkle: proof element %d is %d bytes, want 32", i, len(raw))
		}
		copy(proof[i][:], raw)
	}
	return proof, nil
}

// EncodeRoot returns the root as lowercase hex.
func EncodeRoot(h Hash) string {
	return hex.EncodeToString(h[:])
}
