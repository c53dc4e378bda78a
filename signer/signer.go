package signer

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eip712"
)

// Signer binds a private key to a protocol instance and produces the typed
// signatures the authorizer and the token accept.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	encoder *eip712.Encoder
}

func New(key *ecdsa.PrivateKey, encoder *eip712.Encoder) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		encoder: encoder,
	}
}

// Address returns the account this signer signs as.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignMint authorizes minting amount to the recipient at the given nonce, in
// the v in {27, 28} presentation verifiers expect.
func (s *Signer) SignMint(to common.Address, amount *uint256.Int, nonce, deadline uint64) ([]byte, error) {
	digest, hashErr := s.encoder.MintDigest(to, amount, nonce, deadline)
	if hashErr != nil {
		return nil, hashErr
	}
	return SignRawMessage(digest, s.key, false)
}

// SignPermit authorizes spender to move value from this signer's balance.
func (s *Signer) SignPermit(spender common.Address, value *uint256.Int, nonce, deadline uint64) ([]byte, error) {
	digest, hashErr := s.encoder.PermitDigest(s.address, spender, value, nonce, deadline)
	if hashErr != nil {
		return nil, hashErr
	}
	return SignRawMessage(digest, s.key, false)
}

// SignText signs message under the EIP-191 personal-sign scheme used for the
// relayer's administrative endpoints.
func (s *Signer) SignText(message string) ([]byte, error) {
	return SignRawMessage(accounts.TextHash([]byte(message)), s.key, false)
}

// Signs bytes using a private key and returns the signature.
// The "sensible" parameter refers to the v-byte of the signature. If it is
// true, then the v-byte will be 0 or 1. Default should be sensible=false. For
// more information look at comment in the function implementation.
func SignRawMessage(message []byte, key *ecdsa.PrivateKey, sensible bool) ([]byte, error) {
	signature, err := crypto.Sign(message, key)
	if err != nil {
		return nil, err
	}
	if !sensible {
		// This refers to a bug in an early Ethereum client implementation where the v parameter byte was
		// shifted by 27: https://github.com/ethereum/go-ethereum/issues/2053
		// Default for callers should be NOT sensible.
		if signature[64] < 2 {
			signature[64] += 27
		}
	}
	return signature, nil
}
