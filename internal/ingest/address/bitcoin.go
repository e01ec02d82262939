package address

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// NormalizeBitcoin validates addr against params and returns its
// canonical string encoding.
func NormalizeBitcoin(addr string, params *chaincfg.Params) (string, error) {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return "", fmt.Errorf("address: %q is not a valid bitcoin address: %w", addr, err)
	}
	return decoded.EncodeAddress(), nil
}
