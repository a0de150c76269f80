package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tokengate/tokengate/platform"
	"github.com/tokengate/tokengate/verification/domain"
)

// GrantOutcome reports one successful role grant from a bulk verification.
type GrantOutcome struct {
	RuleID       string `json:"rule_id"`
	RoleID       string `json:"role_id"`
	NewlyGranted bool   `json:"newly_granted"`
}

// RoleFailure reports a role that qualified but could not be granted.
type RoleFailure struct {
	RuleID string `json:"rule_id"`
	RoleID string `json:"role_id"`
	Reason string `json:"reason"`
}

// BulkResult is the outcome of evaluating a rule set against one address.
type BulkResult struct {
	ValidRules          []*domain.Rule `json:"-"`
	InvalidRules        []*domain.Rule `json:"-"`
	Results             []domain.PerRuleResult `json:"results"`
	MatchingAssetCounts map[string]int `json:"matching_asset_counts"`
	Granted             []GrantOutcome `json:"granted"`
	Failed              []RoleFailure  `json:"failed,omitempty"`
}

// NewlyGrantedCount counts grants that created a fresh ledger row.
func (r *BulkResult) NewlyGrantedCount() int {
	n := 0
	for _, g := range r.Granted {
		if g.NewlyGranted {
			n++
		}
	}
	return n
}

// FlowResult is the response of the full signature verification flow.
type FlowResult struct {
	Message       string   `json:"message"`
	Address       string   `json:"address"`
	AssignedRoles []string `json:"assignedRoles"`

	// Routing context from the nonce, so the command layer can update the
	// interactive prompt that started the flow.
	MessageID string `json:"-"`
	ChannelID string `json:"-"`
}

// Engine evaluates ownership rules against an address's holdings and drives
// role grants with per-role fault isolation.
type Engine struct {
	rules    domain.RuleRepository
	ledger   domain.AssignmentLedger
	nonces   domain.NonceStore
	assets   platform.AssetSource
	roles    platform.RoleMutator
	verifier *SignatureVerifier
	now      func() time.Time
}

func NewEngine(
	rules domain.RuleRepository,
	ledger domain.AssignmentLedger,
	nonces domain.NonceStore,
	assets platform.AssetSource,
	roles platform.RoleMutator,
	verifier *SignatureVerifier,
) *Engine {
	return &Engine{
		rules:    rules,
		ledger:   ledger,
		nonces:   nonces,
		assets:   assets,
		roles:    roles,
		verifier: verifier,
		now:      time.Now,
	}
}

// VerifyUserBulk evaluates every candidate rule against the address's
// holdings, fetched exactly once regardless of rule count, then grants roles
// for the valid rules. One grant failing never aborts the remaining grants.
//
// Returns ErrNoQualifyingRules when the rule set resolves empty and
// ErrNoMatchingHoldings when no rule is satisfied; both come with the
// (partial) result so callers can still report per-rule counts.
func (e *Engine) VerifyUserBulk(ctx context.Context, userID string, ruleIDs []string, address, channelID string) (*BulkResult, error) {
	result := &BulkResult{MatchingAssetCounts: make(map[string]int)}

	rules, err := e.rules.GetByIDs(ctx, ruleIDs)
	if err != nil {
		return result, fmt.Errorf("resolve rules: %w", err)
	}
	if len(rules) == 0 {
		return result, domain.ErrNoQualifyingRules
	}

	// Single external query per attempt, a deliberate cost-control decision.
	assets, err := e.assets.GetAssets(ctx, address)
	if err != nil {
		return result, fmt.Errorf("fetch assets for %s: %w", address, err)
	}

	for _, rule := range rules {
		valid := rule.Matches(assets, channelID)
		count := rule.MatchingAssetCount(assets)

		result.MatchingAssetCounts[rule.ID] = count
		result.Results = append(result.Results, domain.PerRuleResult{
			RuleID:             rule.ID,
			Valid:              valid,
			MatchingAssetCount: count,
		})
		if valid {
			result.ValidRules = append(result.ValidRules, rule)
		} else {
			result.InvalidRules = append(result.InvalidRules, rule)
		}
	}

	if len(result.ValidRules) == 0 {
		return result, domain.ErrNoMatchingHoldings
	}

	for _, rule := range result.ValidRules {
		e.grantForRule(ctx, result, rule, userID, address)
	}

	return result, nil
}

// grantForRule attempts one role grant plus its ledger upsert. Failures are
// logged and recorded in the result, never propagated to sibling rules.
func (e *Engine) grantForRule(ctx context.Context, result *BulkResult, rule *domain.Rule, userID, address string) {
	if err := e.roles.GrantRole(ctx, userID, rule.RoleID, rule.ServerID); err != nil {
		logrus.WithError(err).Warnf("[VERIFY] grant of role %s to user %s failed, continuing", rule.RoleID, userID)
		result.Failed = append(result.Failed, RoleFailure{
			RuleID: rule.ID,
			RoleID: rule.RoleID,
			Reason: domain.ErrRoleMutation.Error(),
		})
		return
	}

	now := e.now().UTC()
	created, err := e.ledger.UpsertActive(ctx, &domain.RoleAssignment{
		UserID:        userID,
		ServerID:      rule.ServerID,
		RoleID:        rule.RoleID,
		RuleID:        rule.ID,
		Address:       address,
		VerifiedAt:    now,
		LastCheckedAt: now,
	})
	if err != nil {
		// Role is granted on the platform; the next sweep will re-derive the
		// ledger truth. Surfacing this would wrongly fail a granted role.
		logrus.WithError(err).Errorf("[VERIFY] ledger upsert failed for user %s role %s", userID, rule.RoleID)
		result.Failed = append(result.Failed, RoleFailure{
			RuleID: rule.ID,
			RoleID: rule.RoleID,
			Reason: domain.ErrPersistence.Error(),
		})
		return
	}

	result.Granted = append(result.Granted, GrantOutcome{
		RuleID:       rule.ID,
		RoleID:       rule.RoleID,
		NewlyGranted: created,
	})
}

// VerifySignatureFlow is the single verification entry point: claim the
// challenge, recover the signer, evaluate every rule of the server and grant
// what qualifies.
func (e *Engine) VerifySignatureFlow(ctx context.Context, payload SignPayload, signature string) (*FlowResult, error) {
	// Routing context must be read before Verify, which consumes the nonce.
	nctx, err := e.nonces.Context(ctx, payload.UserID)
	if err != nil && !errors.Is(err, domain.ErrInvalidNonce) {
		return nil, fmt.Errorf("read nonce context: %w", err)
	}

	address, err := e.verifier.Verify(ctx, payload, signature)
	if err != nil {
		return nil, err
	}

	rules, err := e.rules.ListByServer(ctx, payload.ServerID)
	if err != nil {
		return nil, fmt.Errorf("list rules for server %s: %w", payload.ServerID, err)
	}
	ruleIDs := make([]string, 0, len(rules))
	for _, r := range rules {
		ruleIDs = append(ruleIDs, r.ID)
	}

	result, err := e.VerifyUserBulk(ctx, payload.UserID, ruleIDs, address, nctx.ChannelID)
	if err != nil {
		return nil, err
	}

	assigned := make([]string, 0, len(result.Granted))
	for _, g := range result.Granted {
		assigned = append(assigned, g.RoleID)
	}

	newly := result.NewlyGrantedCount()
	return &FlowResult{
		Message:       fmt.Sprintf("Verified %s: %d new role(s), %d already held", address, newly, len(result.Granted)-newly),
		Address:       address,
		AssignedRoles: assigned,
		MessageID:     nctx.MessageID,
		ChannelID:     nctx.ChannelID,
	}, nil
}
