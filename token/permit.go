package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eip712"
)

// PermitNonce returns the next nonce a permit signature from owner must carry.
func (t *Token) PermitNonce(owner common.Address) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.permitNonces[owner]
}

// Permit sets spender's allowance over owner's balance to value without a call
// from owner, on the strength of owner's signature over the permit digest. The
// nonce bound into the digest is read from the ledger, so a permit can be
// applied once; replaying it fails signer recovery against the advanced nonce.
func (t *Token) Permit(owner, spender common.Address, value *uint256.Int, deadline uint64, signature []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.paused {
		return ErrSuspended
	}
	if uint64(t.now().Unix()) > deadline {
		return ErrExpired
	}
	if spender == zeroAddress {
		return ErrInvalidRecipient
	}

	value = valueOrZero(value)
	nonce := t.permitNonces[owner]

	digest, digestErr := t.encoder.PermitDigest(owner, spender, value, nonce, deadline)
	if digestErr != nil {
		return fmt.Errorf("building permit digest: %w", digestErr)
	}

	signer, recoverErr := eip712.RecoverSigner(digest, signature)
	if recoverErr != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignature, recoverErr)
	}
	if signer != owner {
		return ErrUnauthorized
	}

	t.setAllowance(owner, spender, value)
	t.permitNonces[owner] = nonce + 1
	t.emit(EventApproval, owner, spender, value)
	return nil
}
