// Package mintauth verifies delegated mint authorizations. The token owner
// signs a typed message naming a recipient, an amount, the recipient's next
// nonce, and a deadline; anyone may submit that signature here, and the
// authorizer mints only if the signature verifies against the current owner
// under every guard. Nonces are kept per recipient and advance on success, so
// an authorization can be applied exactly once.
package mintauth

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eip712"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/token"
)

// Ledger is the mint primitive the authorizer drives once a request has
// passed every guard.
type Ledger interface {
	Mint(to common.Address, amount *uint256.Int) error
}

// AccessControl exposes the authority state the guards consult. The owner is
// read at verification time, so rotating ownership immediately changes whose
// signatures are accepted.
type AccessControl interface {
	CurrentOwner() common.Address
	IsPaused() bool
}

// Authorizer serializes delegated mints. The mutex spans every guard, the
// nonce read, the mint, and the nonce advance, so two submissions carrying
// the same nonce can never both succeed.
type Authorizer struct {
	mu sync.Mutex

	encoder *eip712.Encoder
	ledger  Ledger
	access  AccessControl
	nonces  map[common.Address]uint64

	now func() time.Time
}

func New(encoder *eip712.Encoder, ledger Ledger, access AccessControl) *Authorizer {
	return &Authorizer{
		encoder: encoder,
		ledger:  ledger,
		access:  access,
		nonces:  make(map[common.Address]uint64),
		now:     time.Now,
	}
}

// Nonce returns the nonce the next authorization for account must be signed
// over. Never-seen accounts start at zero.
func (authorizer *Authorizer) Nonce(account common.Address) uint64 {
	authorizer.mu.Lock()
	defer authorizer.mu.Unlock()
	return authorizer.nonces[account]
}

// MintDigest builds the digest the owner must sign to authorize minting
// amount to the given recipient, bound to the recipient's current nonce. It
// also returns that nonce so signing tooling can display it.
func (authorizer *Authorizer) MintDigest(to common.Address, amount *uint256.Int, deadline uint64) ([]byte, uint64, error) {
	authorizer.mu.Lock()
	defer authorizer.mu.Unlock()

	nonce := authorizer.nonces[to]
	digest, err := authorizer.encoder.MintDigest(to, amount, nonce, deadline)
	return digest, nonce, err
}

// AuthorizeAndMint validates a delegated mint authorization and, if every
// guard passes, mints and advances the recipient's nonce. Guards run in a
// fixed order: suspension, deadline, recipient, then signature recovery and
// the identity check against the current owner. A failure at any step leaves
// the ledger and the nonce untouched.
func (authorizer *Authorizer) AuthorizeAndMint(to common.Address, amount *uint256.Int, deadline uint64, signature []byte) error {
	authorizer.mu.Lock()
	defer authorizer.mu.Unlock()

	if authorizer.access.IsPaused() {
		return token.ErrSuspended
	}
	// A deadline equal to the current timestamp is still live.
	if uint64(authorizer.now().Unix()) > deadline {
		return token.ErrExpired
	}
	if to == (common.Address{}) {
		return token.ErrInvalidRecipient
	}

	if amount == nil {
		amount = new(uint256.Int)
	}
	nonce := authorizer.nonces[to]

	digest, digestErr := authorizer.encoder.MintDigest(to, amount, nonce, deadline)
	if digestErr != nil {
		return fmt.Errorf("building mint digest: %w", digestErr)
	}

	signer, recoverErr := eip712.RecoverSigner(digest, signature)
	if recoverErr != nil {
		return fmt.Errorf("%w: %v", token.ErrMalformedSignature, recoverErr)
	}
	if signer != authorizer.access.CurrentOwner() {
		return token.ErrUnauthorized
	}

	if mintErr := authorizer.ledger.Mint(to, amount); mintErr != nil {
		return mintErr
	}
	authorizer.nonces[to] = nonce + 1
	return nil
}
