// Package tokenid normalizes and validates token addresses per chain.
package tokenid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"call-backtest-lab/internal/domain"
)

// Validation errors
var (
	ErrEmptyAddress  = errors.New("empty token address")
	ErrInvalidBase58 = errors.New("token address is not valid base58")
	ErrInvalidLength = errors.New("token address has wrong length")
	ErrOffCurve      = errors.New("token address is off the ed25519 curve")
	ErrInvalidHex    = errors.New("token address is not a 0x-prefixed hex address")
)

// pubkeyLen is the decoded length of a Solana public key.
const pubkeyLen = 32

// Options configures address validation.
type Options struct {
	// RejectOffCurve rejects Solana addresses that are not ed25519 points.
	// Program-derived addresses are off-curve and are never mints.
	RejectOffCurve bool
}

// Normalize returns the canonical form of address on chain.
// Solana addresses keep their case; EVM addresses are lower-cased.
// Addresses on chains without a known format pass through trimmed.
func Normalize(chain, address string, opts Options) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ErrEmptyAddress
	}

	switch strings.ToLower(chain) {
	case domain.ChainSolana:
		return address, validateSolana(address, opts)
	case domain.ChainEthereum, domain.ChainBase, domain.ChainBSC:
		return normalizeEVM(address)
	default:
		return address, nil
	}
}

func validateSolana(address string, opts Options) error {
	decoded, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBase58, err)
	}
	if len(decoded) != pubkeyLen {
		return fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(decoded))
	}
	if opts.RejectOffCurve && !IsOnCurve(decoded) {
		return ErrOffCurve
	}
	return nil
}

func normalizeEVM(address string) (string, error) {
	lower := strings.ToLower(address)
	if !strings.HasPrefix(lower, "0x") || len(lower) != 42 {
		return "", ErrInvalidHex
	}
	if _, err := hex.DecodeString(lower[2:]); err != nil {
		return "", ErrInvalidHex
	}
	return lower, nil
}

// IsOnCurve reports whether point decodes to an ed25519 curve point.
func IsOnCurve(point []byte) bool {
	if len(point) != pubkeyLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
