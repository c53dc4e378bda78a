package eip712

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverSigner returns the address of the account whose key produced the
// given signature over the given digest. The caller's signature slice is
// never modified.
func RecoverSigner(digest []byte, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, ErrSignatureLength
	}

	normalizedSignature := make([]byte, SignatureLength)
	copy(normalizedSignature, signature)

	// Normalize signature so that 27 -> 0, 28 -> 1.
	// For more context: https://github.com/ethereum/go-ethereum/issues/2053
	if normalizedSignature[64] == 27 || normalizedSignature[64] == 28 {
		normalizedSignature[64] -= 27
	}

	signerPubkey, recoverErr := crypto.SigToPub(digest, normalizedSignature)
	if recoverErr != nil {
		return common.Address{}, recoverErr
	}

	return crypto.PubkeyToAddress(*signerPubkey), nil
}
