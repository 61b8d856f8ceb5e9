package fast

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// The memory merkle tree has 32-byte leaves over the full 32-bit address space:
// PageAddrSize-5 levels within a page, PageKeySize levels above the pages.
const memoryTreeHeight = PageKeySize + PageAddrSize - 5

func HashPair(left, right [32]byte) [32]byte {
	return crypto.Keccak256Hash(left[:], right[:])
}

var zeroHashes = func() [memoryTreeHeight + 1][32]byte {
	// empty parts of the tree are all zero. Precompute the hash of each full-zero range sub-tree level.
	var out [memoryTreeHeight + 1][32]byte
	for i := 1; i < len(out); i++ {
		out[i] = HashPair(out[i-1], out[i-1])
	}
	return out
}()

// merkleRoot computes the root of a sparse set of pages, keyed by page index.
func merkleRoot(pages map[uint32]*Page) [32]byte {
	// generalized index of every inner node that has at least one page below it
	branches := make(map[uint64]struct{})
	for k := range pages {
		for d := uint64(0); d <= PageKeySize; d++ {
			branches[(uint64(1)<<d)|(uint64(k)>>(PageKeySize-d))] = struct{}{}
		}
	}
	var node func(gindex uint64, depth uint64) [32]byte
	node = func(gindex uint64, depth uint64) [32]byte {
		if _, ok := branches[gindex]; !ok {
			return zeroHashes[PageKeySize-depth+PageAddrSize-5]
		}
		if depth == PageKeySize {
			return pages[uint32(gindex&PageKeyMask)].MerkleRoot()
		}
		return HashPair(node(gindex<<1, depth+1), node(gindex<<1|1, depth+1))
	}
	return node(1, 0)
}
