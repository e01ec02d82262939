// Package address normalizes and validates account identifiers per
// chain family before the import runner hands them to a Provider.
package address

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeEVM lowercases and checksum-validates an EVM address.
func NormalizeEVM(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("address: %q is not a valid EVM address", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}
