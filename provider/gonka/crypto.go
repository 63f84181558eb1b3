package gonka

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // cosmos addresses are defined over RIPEMD-160
)

const addressPrefix = "gonka"

// signer holds a parsed private key and the requester address derived from it.
type signer struct {
	key     *secp256k1.PrivateKey
	address string
}

func newSigner(hexKey string) (*signer, error) {
	key, err := parsePrivateKey(hexKey)
	if err != nil {
		return nil, err
	}
	addr, err := deriveAddress(key)
	if err != nil {
		return nil, err
	}
	return &signer{key: key, address: addr}, nil
}

// parsePrivateKey decodes a hex string, with or without 0x, into a
// secp256k1 private key.
func parsePrivateKey(hexKey string) (*secp256k1.PrivateKey, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")

	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}

	key := secp256k1.PrivKeyFromBytes(raw)
	if key.Key.IsZero() {
		return nil, fmt.Errorf("private key is zero")
	}
	return key, nil
}

// deriveAddress computes the bech32 requester address:
// compressed pubkey -> SHA-256 -> RIPEMD-160 -> bech32("gonka").
func deriveAddress(key *secp256k1.PrivateKey) (string, error) {
	sha := sha256.Sum256(key.PubKey().SerializeCompressed())

	h := ripemd160.New()
	h.Write(sha[:])

	addr, err := encodeAddress(addressPrefix, h.Sum(nil))
	if err != nil {
		return "", fmt.Errorf("derive address: %w", err)
	}
	return addr, nil
}

// sign returns the base64 raw signature (r || s) over
// SHA-256(hex(SHA-256(body)) + timestamp + transferAddress).
func (s *signer) sign(body []byte, tsNanos int64, transferAddr string) string {
	bodyHash := sha256.Sum256(body)
	message := hex.EncodeToString(bodyHash[:]) + strconv.FormatInt(tsNanos, 10) + transferAddr
	digest := sha256.Sum256([]byte(message))

	// RFC6979 deterministic, low-S. Byte 0 is the recovery flag.
	compact := ecdsa.SignCompact(s.key, digest[:], false)
	return base64.StdEncoding.EncodeToString(compact[1:65])
}
