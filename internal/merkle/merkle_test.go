package merkle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLeaves(n int) []Hash {
	leaves := make([]Hash, n)
	for i := range leaves {
		var wallet [32]byte
		wallet[0] = byte(i + 1)
		leaves[i] = LeafHash(uint32(i), wallet, uint64((i+1)*1000))
	}
	return leaves
}

func TestBuildRejectsEmpty(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrNoLeaves)
}

func TestProofRoundTrip(t *testing.T) {
	// Cover single leaf, even, odd, and power-of-two counts.
	for _, n := range []int{1, 2, 3, 5, 8, 13, 50} {
		t.Run(fmt.Sprintf("%d leaves", n), func(t *testing.T) {
			leaves := testLeaves(n)
			tree, err := Build(leaves)
			assert.NoError(t, err)

			root := tree.Root()
			for i, leaf := range leaves {
				proof, err := tree.Proof(i)
				assert.NoError(t, err)
				assert.True(t, Verify(leaf, proof, root), "leaf %d should verify", i)
			}
		})
	}
}

func TestVerifyRejectsTamperedLeaf(t *testing.T) {
	leaves := testLeaves(8)
	tree, err := Build(leaves)
	assert.NoError(t, err)

	proof, err := tree.Proof(3)
	assert.NoError(t, err)

	var wallet [32]byte
	wallet[0] = 4
	forged := LeafHash(3, wallet, 999_999)
	assert.False(t, Verify(forged, proof, tree.Root()))
}

func TestVerifyRejectsWrongProof(t *testing.T) {
	leaves := testLeaves(8)
	tree, err := Build(leaves)
	assert.NoError(t, err)

	proofForOther, err := tree.Proof(5)
	assert.NoError(t, err)
	assert.False(t, Verify(leaves[2], proofForOther, tree.Root()))
}

func TestProofOutOfRange(t *testing.T) {
	tree, err := Build(testLeaves(4))
	assert.NoError(t, err)

	_, err = tree.Proof(-1)
	assert.Error(t, err)
	_, err = tree.Proof(4)
	assert.Error(t, err)
}

func TestSortedPairIsOrderIndependent(t *testing.T) {
	a := keccak256([]byte("a"))
	b := keccak256([]byte("b"))
	assert.Equal(t, parent(a, b), parent(b, a))
}

func TestProofEncoding(t *testing.T) {
	tree, err := Build(testLeaves(5))
	assert.NoError(t, err)

	proof, err := tree.Proof(2)
	assert.NoError(t, err)

	encoded := EncodeProof(proof)
	decoded, err := DecodeProof(encoded)
	assert.NoError(t, err)
	assert.Equal(t, proof, decoded)

	empty, err := DecodeProof("")
	assert.NoError(t, err)
	assert.Nil(t, empty)

	_, err = DecodeProof("zz")
	assert.Error(t, err)
	_, err = DecodeProof("abcd")
	assert.Error(t, err)
}
