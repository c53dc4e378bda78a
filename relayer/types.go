package relayer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eventlog"
)

var ZERO_ADDRESS = common.BigToAddress(big.NewInt(0))

var ErrStaleAdminSignature = errors.New("admin signature outside its validity window")

type PingResponse struct {
	Status string `json:"status"`
}

type AddressResponse struct {
	Address string `json:"address"`
}

type StatusResponse struct {
	Name                  string `json:"name"`
	Symbol                string `json:"symbol"`
	Decimals              uint8  `json:"decimals"`
	ChainID               string `json:"chainId"`
	VerifyingContract     string `json:"verifyingContract"`
	Owner                 string `json:"owner"`
	Paused                bool   `json:"paused"`
	TotalSupply           string `json:"totalSupply"`
	TotalSupplyWholeUnits string `json:"totalSupplyWholeUnits"`
	DomainSeparator       string `json:"domainSeparator"`
}

type NonceResponse struct {
	Account     string `json:"account"`
	Nonce       string `json:"nonce"`
	PermitNonce string `json:"permitNonce"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type EventsResponse struct {
	Events []eventlog.Record `json:"events"`
}

// HashRequest describes a prospective mint a client wants the signing digest
// for. Amounts and deadlines travel as decimal or 0x-prefixed strings.
type HashRequest struct {
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Deadline string `json:"deadline"`
}

type HashResponse struct {
	Request     *HashRequest `json:"request"`
	Nonce       string       `json:"nonce"`
	MessageHash string       `json:"messageHash"`
}

// MintRequest is a delegated mint submission. The nonce is not part of the
// request: the service binds the recipient's current nonce into the digest it
// verifies, which is what makes an authorization single-use.
type MintRequest struct {
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Deadline  string `json:"deadline"`
	Signature string `json:"signature"`
}

type MintResponse struct {
	Request     *MintRequest `json:"request"`
	Nonce       string       `json:"nonce"`
	Balance     string       `json:"balance"`
	TotalSupply string       `json:"totalSupply"`
}

// AdminRequest authenticates an owner operation. The operation itself is the
// endpoint path; To and Amount matter only for admin mints. Signature is an
// EIP-191 personal-sign signature over the canonical admin message.
type AdminRequest struct {
	To        string `json:"to,omitempty"`
	Amount    string `json:"amount,omitempty"`
	IssuedAt  int64  `json:"issuedAt"`
	Signature string `json:"signature"`
}

type AdminResponse struct {
	Operation string `json:"operation"`
	Applied   bool   `json:"applied"`
	Signer    string `json:"signer"`
}

// mintParameters carries a parsed and range-checked request.
type mintParameters struct {
	To        common.Address
	Amount    *uint256.Int
	Deadline  uint64
	Signature []byte
}

func (p *mintParameters) ParseHashRequest(request *HashRequest) error {
	if !common.IsHexAddress(request.To) {
		return fmt.Errorf("error parsing to: %s", request.To)
	}

	amount, parseErr := parseAmount(request.Amount)
	if parseErr != nil {
		return fmt.Errorf("error parsing amount: %w", parseErr)
	}

	deadline, parseErr := parseTimestamp(request.Deadline)
	if parseErr != nil {
		return fmt.Errorf("error parsing deadline: %w", parseErr)
	}

	p.To = common.HexToAddress(request.To)
	p.Amount = amount
	p.Deadline = deadline

	return nil
}

func (p *mintParameters) ParseMintRequest(request *MintRequest) error {
	if err := p.ParseHashRequest(&HashRequest{To: request.To, Amount: request.Amount, Deadline: request.Deadline}); err != nil {
		return err
	}

	signature, decodeErr := decodeSignature(request.Signature)
	if decodeErr != nil {
		return decodeErr
	}
	p.Signature = signature

	return nil
}

func decodeSignature(value string) ([]byte, error) {
	signature, decodeErr := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if decodeErr != nil {
		return nil, fmt.Errorf("error parsing signature: %w", decodeErr)
	}
	return signature, nil
}

// parseAmount accepts decimal or 0x-prefixed hex and rejects negatives and
// values beyond 256 bits.
func parseAmount(value string) (*uint256.Int, error) {
	parsed, parseOK := new(big.Int).SetString(strings.TrimSpace(value), 0)
	if !parseOK {
		return nil, fmt.Errorf("%q is not a number", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("%q is negative", value)
	}
	amount, overflow := uint256.FromBig(parsed)
	if overflow {
		return nil, fmt.Errorf("%q does not fit in 256 bits", value)
	}
	return amount, nil
}

func parseTimestamp(value string) (uint64, error) {
	parsed, parseOK := new(big.Int).SetString(strings.TrimSpace(value), 0)
	if !parseOK {
		return 0, fmt.Errorf("%q is not a number", value)
	}
	if parsed.Sign() < 0 || !parsed.IsUint64() {
		return 0, fmt.Errorf("%q is not a valid timestamp", value)
	}
	return parsed.Uint64(), nil
}
