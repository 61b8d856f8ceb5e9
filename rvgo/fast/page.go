package fast

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Note: 2**12 = 4 KiB pages; a 32-bit address splits into a 20-bit page key and a 12-bit page address.
const (
	PageAddrSize = 12
	PageKeySize  = 32 - PageAddrSize
	PageSize     = 1 << PageAddrSize
	PageAddrMask = PageSize - 1
	MaxPageCount = 1 << PageKeySize
	PageKeyMask  = MaxPageCount - 1
)

type Page [PageSize]byte

var zeroPage Page

func (p *Page) IsZero() bool {
	return *p == zeroPage
}

// MerkleRoot merkleizes the page as 32-byte leaves.
func (p *Page) MerkleRoot() [32]byte {
	var nodes [PageSize / 32][32]byte
	for i := range nodes {
		copy(nodes[i][:], p[i*32:])
	}
	for n := len(nodes); n > 1; n /= 2 {
		for i := 0; i < n/2; i++ {
			nodes[i] = HashPair(nodes[2*i], nodes[2*i+1])
		}
	}
	return nodes[0]
}

func (p *Page) MarshalText() ([]byte, error) {
	return hexutil.Bytes(p[:]).MarshalText()
}

func (p *Page) UnmarshalText(text []byte) error {
	var dat hexutil.Bytes
	if err := dat.UnmarshalText(text); err != nil {
		return err
	}
	if len(dat) != PageSize {
		return fmt.Errorf("invalid page size %d, expected %d", len(dat), PageSize)
	}
	copy(p[:], dat)
	return nil
}
