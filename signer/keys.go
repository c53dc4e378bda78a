// Package signer loads the owner's signing key and produces the signatures
// that authorize protocol operations.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/term"
)

// SigningKeyFromEnv loads the owner's signing key from the environment
// following this strategy:
//   - If RAINCLOUD_PRIVATE_KEY is set, it takes priority. It is expected to
//     hold the hex representation of the key and is decoded directly.
//   - If RAINCLOUD_AWS_SECRET_ID is set, the hex key is fetched from AWS
//     Secrets Manager under that secret ID, using the ambient AWS credential
//     chain.
//   - If RAINCLOUD_KEYSTORE is set, it is expected to be a path to a keystore
//     file. If RAINCLOUD_KEYSTORE_PASSWORD is also set, that is used as the
//     password to decrypt the keystore. Otherwise, the user is prompted for
//     this password.
func SigningKeyFromEnv(ctx context.Context) (*ecdsa.PrivateKey, error) {
	privateKeyHex := os.Getenv("RAINCLOUD_PRIVATE_KEY")
	if privateKeyHex != "" {
		return PrivateKey(privateKeyHex)
	}

	secretID := os.Getenv("RAINCLOUD_AWS_SECRET_ID")
	if secretID != "" {
		return PrivateKeyFromSecretsManager(ctx, secretID)
	}

	keystoreFile := os.Getenv("RAINCLOUD_KEYSTORE")
	if keystoreFile == "" {
		return nil, errors.New("one of RAINCLOUD_PRIVATE_KEY, RAINCLOUD_AWS_SECRET_ID, or RAINCLOUD_KEYSTORE environment variables must be set")
	}

	prompt := false
	keystorePassword, ok := os.LookupEnv("RAINCLOUD_KEYSTORE_PASSWORD")
	if !ok {
		prompt = true
	}
	return PrivateKeyFromKeystoreFile(keystoreFile, keystorePassword, prompt)
}

// PrivateKey decodes a private key from its hex representation. A leading
// "0x" is tolerated.
func PrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	parsedPrivateKey, parseErr := crypto.HexToECDSA(trimmed)
	return parsedPrivateKey, parseErr
}

// PrivateKeyFromKeystoreFile loads a private key from a keystore file. If
// prompt is true, the user will be interactively prompted for the password to
// the keystore file even if the password variable is nonempty.
func PrivateKeyFromKeystoreFile(keystoreFile, password string, prompt bool) (*ecdsa.PrivateKey, error) {
	keystoreContent, readErr := os.ReadFile(keystoreFile)
	if readErr != nil {
		return nil, readErr
	}

	// If password is "", prompt user for password.
	if prompt {
		fmt.Printf("Please provide a password for keystore (%s): ", keystoreFile)
		passwordRaw, inputErr := term.ReadPassword(int(os.Stdin.Fd()))
		if inputErr != nil {
			return nil, fmt.Errorf("error reading password: %s", inputErr.Error())
		}
		fmt.Print("\n")
		password = string(passwordRaw)
	}

	key, decryptErr := keystore.DecryptKey(keystoreContent, password)
	if decryptErr != nil {
		return nil, decryptErr
	}
	return key.PrivateKey, nil
}

// PrivateKeyFromSecretsManager fetches the hex representation of a private
// key from AWS Secrets Manager.
func PrivateKeyFromSecretsManager(ctx context.Context, secretID string) (*ecdsa.PrivateKey, error) {
	awsCfg, cfgErr := awsconfig.LoadDefaultConfig(ctx)
	if cfgErr != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", cfgErr)
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	secret, getErr := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if getErr != nil {
		return nil, fmt.Errorf("fetching signing key from Secrets Manager: %w", getErr)
	}
	if secret.SecretString == nil {
		return nil, fmt.Errorf("secret %s does not hold a string value", secretID)
	}

	return PrivateKey(*secret.SecretString)
}
