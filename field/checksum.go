package field

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	ErrTypeChecksumMismatch = "checksum_mismatch"
)

// Checksum returns the Keccak-256 hex digest of the binary encoding of f.
// Two bakes of the same scene produce the same checksum.
func Checksum(f BakedField) string {
	return ChecksumBinary(EncodeBinary(f))
}

// ChecksumBinary returns the Keccak-256 hex digest of an encoded artifact.
func ChecksumBinary(b []byte) string {
	return crypto.Keccak256Hash(b).Hex()
}

// VerifyChecksum checks that an encoded artifact hashes to the expected digest.
// It must run on the raw bytes: decoding re-normalizes directions.
func VerifyChecksum(b []byte, expected string) error {
	if actual := ChecksumBinary(b); actual != expected {
		return errors.New("artifact checksum mismatch").
			WithType(ErrTypeChecksumMismatch).
			WithTag("expected", expected).
			WithTag("actual", actual)
	}
	return nil
}
