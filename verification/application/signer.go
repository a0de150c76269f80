package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/tokengate/tokengate/verification/domain"
)

// SignPayload carries the challenge fields the wallet signed.
// Address is the wallet's own claim; the recovered signer is authoritative.
type SignPayload struct {
	UserID   string `json:"userId"`
	ServerID string `json:"serverId"`
	Nonce    string `json:"nonce"`
	Expiry   int64  `json:"expiry"` // unix seconds
	Address  string `json:"address"`
}

// SignatureVerifier recovers the signer address from an EIP-712 typed-data
// signature and enforces challenge freshness. Stateless beyond the nonce
// claim; each call is one attempt, no retries.
type SignatureVerifier struct {
	nonces        domain.NonceStore
	domainName    string
	domainVersion string
	chainID       int64
	now           func() time.Time
}

func NewSignatureVerifier(nonces domain.NonceStore, domainName, domainVersion string, chainID int64) *SignatureVerifier {
	return &SignatureVerifier{
		nonces:        nonces,
		domainName:    domainName,
		domainVersion: domainVersion,
		chainID:       chainID,
		now:           time.Now,
	}
}

// Verify claims the nonce, checks the payload expiry and recovers the signer
// address, returned normalized to lowercase hex.
//
// The nonce claim is atomic (check-and-delete), so a concurrent replay of
// the same token loses the race and gets ErrInvalidNonce. It also means the
// nonce is consumed even when the signature turns out to be invalid, which
// matches the one-attempt-per-challenge contract.
func (v *SignatureVerifier) Verify(ctx context.Context, payload SignPayload, signature string) (string, error) {
	claimed, err := v.nonces.Claim(ctx, payload.UserID, payload.Nonce)
	if err != nil {
		return "", fmt.Errorf("claim nonce: %w", err)
	}
	if !claimed {
		return "", domain.ErrInvalidNonce
	}

	if payload.Expiry <= v.now().Unix() {
		return "", domain.ErrExpiredChallenge
	}

	address, err := recoverSigner(v.typedData(payload), signature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}

	// The payload's address is the wallet's claim; a mismatch with the
	// recovered signer means the signature belongs to someone else.
	if payload.Address != "" && !strings.EqualFold(payload.Address, address) {
		return "", fmt.Errorf("%w: signer does not match claimed address", domain.ErrSignatureInvalid)
	}
	return address, nil
}

// typedData builds the fixed-domain EIP-712 structure the frontend signs.
// Domain parameters are constant per deployment; the message binds the chat
// identity to the nonce and expiry.
func (v *SignatureVerifier) typedData(payload SignPayload) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Verification": []apitypes.Type{
				{Name: "userId", Type: "string"},
				{Name: "serverId", Type: "string"},
				{Name: "nonce", Type: "string"},
				{Name: "expiry", Type: "uint256"},
			},
		},
		PrimaryType: "Verification",
		Domain: apitypes.TypedDataDomain{
			Name:    v.domainName,
			Version: v.domainVersion,
			ChainId: math.NewHexOrDecimal256(v.chainID),
		},
		Message: apitypes.TypedDataMessage{
			"userId":   payload.UserID,
			"serverId": payload.ServerID,
			"nonce":    payload.Nonce,
			"expiry":   math.NewHexOrDecimal256(payload.Expiry),
		},
	}
}

func recoverSigner(typedData apitypes.TypedData, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("malformed signature hex: %v", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	// Wallets produce V as 27/28; go-ethereum expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("hash typed data: %v", err)
	}

	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", fmt.Errorf("recover public key: %v", err)
	}

	return strings.ToLower(crypto.PubkeyToAddress(*pubKey).Hex()), nil
}
