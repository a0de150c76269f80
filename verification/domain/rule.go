package domain

import (
	"strings"
	"time"
)

// WildcardSentinel is the storage representation of "match anything".
// Older rows also used the empty string for the same meaning; both are
// normalized into a Criterion at the repository boundary.
const WildcardSentinel = "ALL"

// Criterion is an optional rule field: either a wildcard that matches any
// value, or an exact value. Using one explicit type removes the legacy
// 'ALL'/empty/null triple representation.
type Criterion struct {
	value string
	exact bool
}

// Wildcard returns a criterion that matches any value.
func Wildcard() Criterion {
	return Criterion{}
}

// Exact returns a criterion that matches only the given value.
func Exact(value string) Criterion {
	return Criterion{value: value, exact: true}
}

// CriterionFrom normalizes a raw stored field: empty string and the ALL
// sentinel (any casing) both mean wildcard.
func CriterionFrom(raw string) Criterion {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, WildcardSentinel) {
		return Wildcard()
	}
	return Exact(raw)
}

func (c Criterion) IsWildcard() bool {
	return !c.exact
}

func (c Criterion) Value() string {
	return c.value
}

// Matches reports whether the criterion accepts the given value.
// Comparison is exact; callers that need case folding do it themselves.
func (c Criterion) Matches(value string) bool {
	return !c.exact || c.value == value
}

// Sentinel returns the storage form: the ALL sentinel for wildcards,
// the exact value otherwise.
func (c Criterion) Sentinel() string {
	if !c.exact {
		return WildcardSentinel
	}
	return c.value
}

// Asset is an externally sourced holding: a collection slug plus its
// attribute map. This engine never owns or mutates assets.
type Asset struct {
	Slug       string            `json:"slug"`
	Attributes map[string]string `json:"attributes"`
}

// Rule is an admin-defined ownership criterion mapped to a grantable role.
type Rule struct {
	ID             string    `json:"id"`
	ServerID       string    `json:"server_id"`
	ChannelID      Criterion `json:"-"` // unset = any channel
	CollectionSlug Criterion `json:"-"`
	AttributeKey   Criterion `json:"-"`
	AttributeValue Criterion `json:"-"`
	MinItems       int       `json:"min_items"`
	RoleID         string    `json:"role_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Matches evaluates the full predicate for an interactive verification:
// channel scope, collection slug, attribute pair and minimum item count.
// It is pure and never blocks.
func (r *Rule) Matches(assets []Asset, channelID string) bool {
	if !r.ChannelID.Matches(channelID) {
		return false
	}
	return r.MatchesHoldings(assets)
}

// MatchesHoldings evaluates only the holdings portion of the predicate
// (slug, attribute, minimum count). The reconciliation sweep uses this form
// since no interactive channel context exists there.
func (r *Rule) MatchesHoldings(assets []Asset) bool {
	if !r.CollectionSlug.IsWildcard() {
		found := false
		for _, a := range assets {
			if a.Slug == r.CollectionSlug.Value() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	// Attribute gate only applies when BOTH key and value are set.
	// Keys compare case-sensitively, values case-insensitively.
	if !r.AttributeKey.IsWildcard() && !r.AttributeValue.IsWildcard() {
		found := false
		for _, a := range assets {
			if v, ok := a.Attributes[r.AttributeKey.Value()]; ok && strings.EqualFold(v, r.AttributeValue.Value()) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	// The minimum gate counts every asset the address holds, not only the
	// slug/attribute-matching ones. Kept as-is from the legacy behavior;
	// MatchingAssetCount below is the filtered figure used for reporting.
	if r.MinItems > 0 && len(assets) < r.MinItems {
		return false
	}

	return true
}

// MatchingAssetCount returns how many assets satisfy the slug and attribute
// criteria. Used for user-facing reporting only, never for the minimum gate.
func (r *Rule) MatchingAssetCount(assets []Asset) int {
	count := 0
	for _, a := range assets {
		if !r.CollectionSlug.Matches(a.Slug) {
			continue
		}
		if !r.AttributeKey.IsWildcard() && !r.AttributeValue.IsWildcard() {
			v, ok := a.Attributes[r.AttributeKey.Value()]
			if !ok || !strings.EqualFold(v, r.AttributeValue.Value()) {
				continue
			}
		}
		count++
	}
	return count
}

// PerRuleResult reports one rule's evaluation outcome.
type PerRuleResult struct {
	RuleID             string `json:"rule_id"`
	Valid              bool   `json:"valid"`
	MatchingAssetCount int    `json:"matching_asset_count"`
}
