package relayer

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eip712"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/token"
)

// AdminSignatureTolerance bounds how far an admin signature's issuedAt may
// drift from the service clock, in either direction.
const AdminSignatureTolerance = 5 * time.Minute

const (
	AdminOpMint    = "mint"
	AdminOpPause   = "pause"
	AdminOpUnpause = "unpause"
)

// AdminMessage is the canonical text the owner signs (EIP-191 personal sign)
// to invoke an admin operation. Chain ID and verifying contract are bound in
// so a signature cannot be replayed against another deployment; issuedAt
// bounds its life. Pause and unpause use the zero address and a zero amount.
func AdminMessage(op string, to common.Address, amount *uint256.Int, issuedAt int64, chainID *big.Int, verifyingContract common.Address) string {
	amountText := "0"
	if amount != nil {
		amountText = amount.ToBig().String()
	}
	return fmt.Sprintf("raincloud-admin:%s:%s:%s:%d:%s:%s",
		op, to.Hex(), amountText, issuedAt, chainID.String(), verifyingContract.Hex())
}

// verifyAdmin recovers the signer of an admin operation and checks it against
// the current owner and the freshness window.
func (server *Server) verifyAdmin(op string, to common.Address, amount *uint256.Int, issuedAt int64, signature []byte) (common.Address, error) {
	now := server.now().Unix()
	tolerance := int64(AdminSignatureTolerance / time.Second)
	if issuedAt > now+tolerance || issuedAt < now-tolerance {
		return ZERO_ADDRESS, ErrStaleAdminSignature
	}

	message := AdminMessage(op, to, amount, issuedAt, server.encoder.ChainID(), server.encoder.VerifyingContract())
	signer, recoverErr := eip712.RecoverSigner(accounts.TextHash([]byte(message)), signature)
	if recoverErr != nil {
		return ZERO_ADDRESS, fmt.Errorf("%w: %v", token.ErrMalformedSignature, recoverErr)
	}
	if signer != server.token.CurrentOwner() {
		return ZERO_ADDRESS, token.ErrUnauthorized
	}
	return signer, nil
}
