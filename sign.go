package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eip712"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/relayer"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/signer"
)

// protocolFlags identify the protocol instance a signature is bound to. They
// must match the chain ID and verifying contract the service was started with.
type protocolFlags struct {
	chainID  uint64
	contract string
}

func (flags *protocolFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&flags.chainID, "chain-id", 1, "Chain ID of the protocol instance")
	cmd.Flags().StringVar(&flags.contract, "contract", "", "Verifying contract address of the protocol instance")
	cmd.MarkFlagRequired("contract")
}

func (flags *protocolFlags) encoder() (*eip712.Encoder, error) {
	if !common.IsHexAddress(flags.contract) {
		return nil, fmt.Errorf("--contract: %q is not a hex address", flags.contract)
	}
	return eip712.NewEncoder(flags.chainID, common.HexToAddress(flags.contract))
}

func parseAmountArg(value string) (*uint256.Int, error) {
	parsed, ok := new(big.Int).SetString(strings.TrimSpace(value), 0)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	amount, overflow := uint256.FromBig(parsed)
	if overflow {
		return nil, fmt.Errorf("amount does not fit in 256 bits")
	}
	return amount, nil
}

func parseAddressArg(flag, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("--%s: %q is not a hex address", flag, value)
	}
	return common.HexToAddress(value), nil
}

func loadSigner(cmd *cobra.Command, encoder *eip712.Encoder) (*signer.Signer, error) {
	key, keyErr := signer.SigningKeyFromEnv(cmd.Context())
	if keyErr != nil {
		return nil, keyErr
	}
	return signer.New(key, encoder), nil
}

func CreateSignCommand() *cobra.Command {
	signCmd := &cobra.Command{
		Use:   "sign",
		Short: "Produce protocol signatures with the configured signing key",
	}

	signCmd.AddCommand(
		CreateSignMintCommand(),
		CreateSignPermitCommand(),
		CreateSignAdminCommand(),
	)

	return signCmd
}

func CreateSignMintCommand() *cobra.Command {
	flags := &protocolFlags{}
	var to, amount string
	var nonce, deadline uint64

	signMintCmd := &cobra.Command{
		Use:   "mint",
		Short: "Sign a delegated mint authorization",
		RunE: func(cmd *cobra.Command, args []string) error {
			encoder, encoderErr := flags.encoder()
			if encoderErr != nil {
				return encoderErr
			}
			recipient, toErr := parseAddressArg("to", to)
			if toErr != nil {
				return toErr
			}
			parsedAmount, amountErr := parseAmountArg(amount)
			if amountErr != nil {
				return amountErr
			}

			owner, signerErr := loadSigner(cmd, encoder)
			if signerErr != nil {
				return signerErr
			}
			signature, signErr := owner.SignMint(recipient, parsedAmount, nonce, deadline)
			if signErr != nil {
				return signErr
			}

			cmd.Println(hexutil.Encode(signature))
			return nil
		},
	}

	flags.register(signMintCmd)
	signMintCmd.Flags().StringVar(&to, "to", "", "Recipient address")
	signMintCmd.Flags().StringVar(&amount, "amount", "", "Amount to mint, in base units")
	signMintCmd.Flags().Uint64Var(&nonce, "nonce", 0, "Recipient's current mint nonce (GET /nonce)")
	signMintCmd.Flags().Uint64Var(&deadline, "deadline", 0, "Unix timestamp after which the authorization expires")
	signMintCmd.MarkFlagRequired("to")
	signMintCmd.MarkFlagRequired("amount")
	signMintCmd.MarkFlagRequired("deadline")

	return signMintCmd
}

func CreateSignPermitCommand() *cobra.Command {
	flags := &protocolFlags{}
	var spender, value string
	var nonce, deadline uint64

	signPermitCmd := &cobra.Command{
		Use:   "permit",
		Short: "Sign an allowance permit for the signing key's account",
		RunE: func(cmd *cobra.Command, args []string) error {
			encoder, encoderErr := flags.encoder()
			if encoderErr != nil {
				return encoderErr
			}
			spenderAddress, spenderErr := parseAddressArg("spender", spender)
			if spenderErr != nil {
				return spenderErr
			}
			parsedValue, valueErr := parseAmountArg(value)
			if valueErr != nil {
				return valueErr
			}

			owner, signerErr := loadSigner(cmd, encoder)
			if signerErr != nil {
				return signerErr
			}
			signature, signErr := owner.SignPermit(spenderAddress, parsedValue, nonce, deadline)
			if signErr != nil {
				return signErr
			}

			cmd.Println(hexutil.Encode(signature))
			return nil
		},
	}

	flags.register(signPermitCmd)
	signPermitCmd.Flags().StringVar(&spender, "spender", "", "Account being granted the allowance")
	signPermitCmd.Flags().StringVar(&value, "value", "", "Allowance value, in base units")
	signPermitCmd.Flags().Uint64Var(&nonce, "nonce", 0, "Owner's current permit nonce")
	signPermitCmd.Flags().Uint64Var(&deadline, "deadline", 0, "Unix timestamp after which the permit expires")
	signPermitCmd.MarkFlagRequired("spender")
	signPermitCmd.MarkFlagRequired("value")
	signPermitCmd.MarkFlagRequired("deadline")

	return signPermitCmd
}

func CreateSignAdminCommand() *cobra.Command {
	flags := &protocolFlags{}
	var op, to, amount string
	var issuedAt int64

	signAdminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Sign an admin operation and print the request body for the admin endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			encoder, encoderErr := flags.encoder()
			if encoderErr != nil {
				return encoderErr
			}

			if op != relayer.AdminOpMint && op != relayer.AdminOpPause && op != relayer.AdminOpUnpause {
				return fmt.Errorf("--op must be one of %s, %s, %s", relayer.AdminOpMint, relayer.AdminOpPause, relayer.AdminOpUnpause)
			}

			recipient := common.Address{}
			var parsedAmount *uint256.Int
			if op == relayer.AdminOpMint {
				var toErr error
				recipient, toErr = parseAddressArg("to", to)
				if toErr != nil {
					return toErr
				}
				var amountErr error
				parsedAmount, amountErr = parseAmountArg(amount)
				if amountErr != nil {
					return amountErr
				}
			}

			if issuedAt == 0 {
				issuedAt = time.Now().Unix()
			}

			owner, signerErr := loadSigner(cmd, encoder)
			if signerErr != nil {
				return signerErr
			}

			message := relayer.AdminMessage(op, recipient, parsedAmount, issuedAt, encoder.ChainID(), encoder.VerifyingContract())
			signature, signErr := owner.SignText(message)
			if signErr != nil {
				return signErr
			}

			request := relayer.AdminRequest{
				IssuedAt:  issuedAt,
				Signature: hexutil.Encode(signature),
			}
			if op == relayer.AdminOpMint {
				request.To = recipient.Hex()
				request.Amount = parsedAmount.ToBig().String()
			}

			body, marshalErr := json.Marshal(request)
			if marshalErr != nil {
				return marshalErr
			}
			cmd.Println(string(body))
			return nil
		},
	}

	flags.register(signAdminCmd)
	signAdminCmd.Flags().StringVar(&op, "op", "", "Admin operation: mint, pause, or unpause")
	signAdminCmd.Flags().StringVar(&to, "to", "", "Recipient address (mint only)")
	signAdminCmd.Flags().StringVar(&amount, "amount", "", "Amount to mint, in base units (mint only)")
	signAdminCmd.Flags().Int64Var(&issuedAt, "issued-at", 0, "Unix timestamp the operation is issued at (defaults to now)")
	signAdminCmd.MarkFlagRequired("op")

	return signAdminCmd
}

func CreateHashCommand() *cobra.Command {
	hashCmd := &cobra.Command{
		Use:   "hash",
		Short: "Print protocol digests without signing",
	}

	hashCmd.AddCommand(CreateHashMintCommand())

	return hashCmd
}

func CreateHashMintCommand() *cobra.Command {
	flags := &protocolFlags{}
	var to, amount string
	var nonce, deadline uint64

	hashMintCmd := &cobra.Command{
		Use:   "mint",
		Short: "Print the digest a delegated mint authorization signs",
		RunE: func(cmd *cobra.Command, args []string) error {
			encoder, encoderErr := flags.encoder()
			if encoderErr != nil {
				return encoderErr
			}
			recipient, toErr := parseAddressArg("to", to)
			if toErr != nil {
				return toErr
			}
			parsedAmount, amountErr := parseAmountArg(amount)
			if amountErr != nil {
				return amountErr
			}

			digest, digestErr := encoder.MintDigest(recipient, parsedAmount, nonce, deadline)
			if digestErr != nil {
				return digestErr
			}

			cmd.Println(hexutil.Encode(digest))
			return nil
		},
	}

	flags.register(hashMintCmd)
	hashMintCmd.Flags().StringVar(&to, "to", "", "Recipient address")
	hashMintCmd.Flags().StringVar(&amount, "amount", "", "Amount to mint, in base units")
	hashMintCmd.Flags().Uint64Var(&nonce, "nonce", 0, "Recipient's current mint nonce")
	hashMintCmd.Flags().Uint64Var(&deadline, "deadline", 0, "Unix timestamp after which the authorization expires")
	hashMintCmd.MarkFlagRequired("to")
	hashMintCmd.MarkFlagRequired("amount")
	hashMintCmd.MarkFlagRequired("deadline")

	return hashMintCmd
}

func CreateAddressCommand() *cobra.Command {
	addressCmd := &cobra.Command{
		Use:   "address",
		Short: "Print the address of the configured signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, keyErr := signer.SigningKeyFromEnv(cmd.Context())
			if keyErr != nil {
				return keyErr
			}
			cmd.Println(crypto.PubkeyToAddress(key.PublicKey).Hex())
			return nil
		},
	}

	return addressCmd
}
