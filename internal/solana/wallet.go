package solana

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
)

// Wallet holds a keypair used as fee payer or token authority.
type Wallet struct {
	privateKey solana.PrivateKey
}

// NewWallet generates a new random wallet
func NewWallet() *Wallet {
	account := solana.NewWallet()
	return &Wallet{
		privateKey: account.PrivateKey,
	}
}

// WalletFromPrivateKey creates a wallet from an existing private key
func WalletFromPrivateKey(pk solana.PrivateKey) *Wallet {
	return &Wallet{
		privateKey: pk,
	}
}

// WalletFromBase58 creates a wallet from a base58-encoded private key
func WalletFromBase58(key string) (*Wallet, error) {
	pk, err := solana.PrivateKeyFromBase58(key)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Wallet{privateKey: pk}, nil
}

// WalletFromFile loads a wallet from a JSON keypair file (Solana CLI format)
func WalletFromFile(path string) (*Wallet, error) {
	pk, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair: %w", err)
	}
	return &Wallet{privateKey: pk}, nil
}

// PublicKey returns the wallet's public key
func (w *Wallet) PublicKey() solana.PublicKey {
	return w.privateKey.PublicKey()
}

// PrivateKey returns the wallet's private key
func (w *Wallet) PrivateKey() solana.PrivateKey {
	return w.privateKey
}

// SaveToFile saves the keypair to a JSON file (Solana CLI format)
func (w *Wallet) SaveToFile(path string) error {
	keypair := make([]int, len(w.privateKey))
	for i, b := range w.privateKey {
		keypair[i] = int(b)
	}
	data, err := json.Marshal(keypair)
	if err != nil {
		return fmt.Errorf("failed to marshal keypair: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write keypair file: %w", err)
	}

	return nil
}

// String returns the public key as a string
func (w *Wallet) String() string {
	return w.PublicKey().String()
}

// Signers is a set of wallets that can sign a transaction.
type Signers []*Wallet

// Key returns the private key for pubkey, or nil when none of the wallets owns it.
// The signature matches solana.Transaction.Sign.
func (s Signers) Key(pubkey solana.PublicKey) *solana.PrivateKey {
	for _, w := range s {
		if w != nil && w.PublicKey().Equals(pubkey) {
			pk := w.privateKey
			return &pk
		}
	}
	return nil
}

// Has reports whether pubkey belongs to one of the wallets.
func (s Signers) Has(pubkey solana.PublicKey) bool {
	return s.Key(pubkey) != nil
}
