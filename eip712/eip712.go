// Package eip712 builds the typed-data digests that authorize Rain Cloud
// Protocol operations and recovers the accounts that signed them.
package eip712

import (
	"errors"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
)

var EIP712Domain []apitypes.Type = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var MintPayload []apitypes.Type = []apitypes.Type{
	{Name: "to", Type: "address"},
	{Name: "amount", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
}

var PermitPayload []apitypes.Type = []apitypes.Type{
	{Name: "owner", Type: "address"},
	{Name: "spender", Type: "address"},
	{Name: "value", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
}

// These are meant to match the EIP712 domain under which RainCloud mint and
// permit authorizations are signed.
var EIP712DomainName = "Rain Cloud Protocol"
var EIP712DomainVersion = "1"

// Encoder produces signing digests bound to a single deployed protocol
// instance, identified by its chain ID and verifying contract address.
type Encoder struct {
	chainID           *big.Int
	verifyingContract common.Address
	separator         []byte
}

// NewEncoder precomputes the domain separator for the given protocol instance.
func NewEncoder(chainID uint64, verifyingContract common.Address) (*Encoder, error) {
	encoder := &Encoder{
		chainID:           new(big.Int).SetUint64(chainID),
		verifyingContract: verifyingContract,
	}

	data := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": EIP712Domain,
		},
		Domain: encoder.domain(),
	}
	separator, hashErr := data.HashStruct("EIP712Domain", data.Domain.Map())
	if hashErr != nil {
		return nil, hashErr
	}
	encoder.separator = separator

	return encoder, nil
}

func (encoder *Encoder) domain() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              EIP712DomainName,
		Version:           EIP712DomainVersion,
		ChainId:           (*math.HexOrDecimal256)(encoder.chainID),
		VerifyingContract: encoder.verifyingContract.Hex(),
	}
}

func (encoder *Encoder) ChainID() *big.Int {
	return new(big.Int).Set(encoder.chainID)
}

func (encoder *Encoder) VerifyingContract() common.Address {
	return encoder.verifyingContract
}

// DomainSeparator returns hashStruct(EIP712Domain) for this protocol instance.
func (encoder *Encoder) DomainSeparator() []byte {
	separator := make([]byte, len(encoder.separator))
	copy(separator, encoder.separator)
	return separator
}

// MintDigest builds the digest whose signature authorizes minting amount units
// to the given recipient. The nonce binds the authorization to a single use and
// the deadline is the last Unix timestamp at which it may be presented.
func (encoder *Encoder) MintDigest(to common.Address, amount *uint256.Int, nonce, deadline uint64) ([]byte, error) {
	// Mint(address to,uint256 amount,uint256 nonce,uint256 deadline)
	if amount == nil {
		amount = new(uint256.Int)
	}

	data := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": EIP712Domain,
			"Mint":         MintPayload,
		},
		PrimaryType: "Mint",
		Domain:      encoder.domain(),
		Message: apitypes.TypedDataMessage{
			"to":       to.Hex(),
			"amount":   amount.ToBig().String(),
			"nonce":    strconv.FormatUint(nonce, 10),
			"deadline": strconv.FormatUint(deadline, 10),
		},
	}

	messageHash, _, err := apitypes.TypedDataAndHash(data)
	return messageHash, err
}

// PermitDigest builds the digest whose signature sets spender's allowance over
// owner's balance to value.
func (encoder *Encoder) PermitDigest(owner, spender common.Address, value *uint256.Int, nonce, deadline uint64) ([]byte, error) {
	// Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)
	if value == nil {
		value = new(uint256.Int)
	}

	data := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": EIP712Domain,
			"Permit":       PermitPayload,
		},
		PrimaryType: "Permit",
		Domain:      encoder.domain(),
		Message: apitypes.TypedDataMessage{
			"owner":    owner.Hex(),
			"spender":  spender.Hex(),
			"value":    value.ToBig().String(),
			"nonce":    strconv.FormatUint(nonce, 10),
			"deadline": strconv.FormatUint(deadline, 10),
		},
	}

	messageHash, _, err := apitypes.TypedDataAndHash(data)
	return messageHash, err
}

// SignatureLength is the expected length of an authorization signature in its
// compact [R || S || V] form.
const SignatureLength = 65

var ErrSignatureLength = errors.New("signature must be 65 bytes long")
