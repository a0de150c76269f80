package domain

import "errors"

var (
	// ErrInvalidNonce se retorna cuando el challenge no existe, expiró o ya fue usado
	ErrInvalidNonce = errors.New("challenge nonce is missing, expired or already used")

	// ErrExpiredChallenge se retorna cuando el payload firmado pasó su expiry
	ErrExpiredChallenge = errors.New("challenge expired before the signature was submitted")

	// ErrSignatureInvalid se retorna cuando la firma no corresponde al typed data
	ErrSignatureInvalid = errors.New("signature could not be verified against the challenge")

	// ErrNoQualifyingRules se retorna cuando no hay reglas candidatas para evaluar
	ErrNoQualifyingRules = errors.New("no ownership rules configured for this server")

	// ErrNoMatchingHoldings se retorna cuando ninguna regla es satisfecha por los holdings
	ErrNoMatchingHoldings = errors.New("address does not hold assets matching any rule")

	// ErrRuleNotFound se retorna cuando una regla referenciada no existe
	ErrRuleNotFound = errors.New("rule not found")

	// ErrAssignmentNotFound se retorna cuando un registro del ledger no existe
	ErrAssignmentNotFound = errors.New("role assignment not found")

	// ErrRoleMutation envuelve fallos del API externo de roles (por rol, no fatal)
	ErrRoleMutation = errors.New("role mutation failed")

	// ErrPersistence envuelve fallos de escritura en el ledger
	ErrPersistence = errors.New("ledger write failed")
)
