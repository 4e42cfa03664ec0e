package web3

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AXR-Monitor/internal/errors"
)

// ParseAddress validates a hex wallet address and returns it in EIP-55
// checksum form.
func ParseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, xerrors.Newf(xerrors.CodeInvalidArgument, "invalid wallet address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

// SameAddress reports whether a and b are the same wallet, ignoring case.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
