// Package allowlist implements deposit allow-listing. A designated signer
// attests a depositor's identity by signing keccak256(depositor address) as
// an Ethereum signed message. The proof is bound to the identity only, so a
// depositor reuses the same proof for every deposit.
package allowlist

import (
	"crypto/ecdsa"
	"fmt"

	"epoch_vault/internal/domain"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureLength = 65

// Open allows every caller. Used when no signer is configured.
type Open struct{}

// Allow always returns true.
func (Open) Allow(common.Address, []byte) bool { return true }

// ECDSA checks proofs signed by a single signer address.
type ECDSA struct {
	signer common.Address
}

// NewECDSA creates a verifier for signer.
func NewECDSA(signer common.Address) *ECDSA {
	return &ECDSA{signer: signer}
}

// ForSigner returns the allow-list for a configured signer; the zero address disables the check.
func ForSigner(signer common.Address) domain.AllowList {
	if signer == (common.Address{}) {
		return Open{}
	}
	return NewECDSA(signer)
}

// Signer returns the address proofs must recover to.
func (v *ECDSA) Signer() common.Address {
	return v.signer
}

// Allow reports whether proof is the signer's attestation of caller.
func (v *ECDSA) Allow(caller common.Address, proof []byte) bool {
	if len(proof) != signatureLength {
		return false
	}
	recovered, err := Recover(caller, proof)
	if err != nil {
		return false
	}
	return recovered == v.signer
}

// ProofHash is the digest the signer signs for depositor.
func ProofHash(depositor common.Address) []byte {
	return accounts.TextHash(crypto.Keccak256(depositor.Bytes()))
}

// Sign produces the allow-list proof of depositor with the signer key.
// The recovery id is encoded as 27/28 like wallet signatures.
func Sign(key *ecdsa.PrivateKey, depositor common.Address) ([]byte, error) {
	sig, err := crypto.Sign(ProofHash(depositor), key)
	if err != nil {
		return nil, fmt.Errorf("sign deposit proof: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the address that signed proof for depositor.
func Recover(depositor common.Address, proof []byte) (common.Address, error) {
	if len(proof) != signatureLength {
		return common.Address{}, fmt.Errorf("proof length %d, want %d", len(proof), signatureLength)
	}
	sig := make([]byte, signatureLength)
	copy(sig, proof)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(ProofHash(depositor), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
