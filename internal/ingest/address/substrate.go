package address

import (
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const ss58Prefix = "SS58PRE"

// DecodeSS58 splits a Substrate SS58 address into its network byte and
// 32-byte public key, verifying the checksum.
func DecodeSS58(addr string) (network byte, pubKey []byte, err error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return 0, nil, fmt.Errorf("address: invalid base58: %w", err)
	}
	if len(raw) != 35 {
		return 0, nil, fmt.Errorf("address: unexpected ss58 payload length %d", len(raw))
	}

	network = raw[0]
	pubKey = raw[1:33]
	checksum := raw[33:35]

	expected, err := ss58Checksum(raw[:33])
	if err != nil {
		return 0, nil, err
	}
	if checksum[0] != expected[0] || checksum[1] != expected[1] {
		return 0, nil, fmt.Errorf("address: ss58 checksum mismatch for %q", addr)
	}
	return network, pubKey, nil
}

// EncodeSS58 re-encodes a 32-byte public key under the given network
// prefix, used to normalize an address to one canonical chain's
// encoding regardless of which Substrate chain format it was supplied in.
func EncodeSS58(network byte, pubKey []byte) (string, error) {
	if len(pubKey) != 32 {
		return "", fmt.Errorf("address: expected 32-byte public key, got %d", len(pubKey))
	}
	payload := append([]byte{network}, pubKey...)
	checksum, err := ss58Checksum(payload)
	if err != nil {
		return "", err
	}
	return base58.Encode(append(payload, checksum[:2]...)), nil
}

func ss58Checksum(payload []byte) ([]byte, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, err
	}
	h.Write([]byte(ss58Prefix))
	h.Write(payload)
	return h.Sum(nil), nil
}
