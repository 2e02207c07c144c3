package executor

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// CommitmentHash returns the 0x-prefixed keccak256 of the JSON encoding of
// envelope. Struct envelopes encode fields in declaration order, so equal
// inputs always produce equal hashes.
func CommitmentHash(envelope any) (string, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("executor: encode commitment envelope: %w", err)
	}
	return ethcrypto.Keccak256Hash(data).Hex(), nil
}

// proofBytes decodes an inference proof for the contract call. Empty and
// "0x" proofs become an empty byte slice. Non-hex proofs are passed through
// as their UTF-8 bytes.
func proofBytes(proof string) []byte {
	p := strings.TrimSpace(proof)
	if p == "" || p == "0x" {
		return []byte{}
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(p, "0x")); err == nil {
		return b
	}
	return []byte(p)
}
