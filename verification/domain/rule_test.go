package domain

import "testing"

func TestCriterionFrom(t *testing.T) {
	cases := []struct {
		raw      string
		wildcard bool
		value    string
	}{
		{"", true, ""},
		{"ALL", true, ""},
		{"all", true, ""},
		{"  ALL  ", true, ""},
		{"cool-cats", false, "cool-cats"},
		{"123456", false, "123456"},
	}

	for _, c := range cases {
		got := CriterionFrom(c.raw)
		if got.IsWildcard() != c.wildcard {
			t.Errorf("CriterionFrom(%q).IsWildcard() = %v, want %v", c.raw, got.IsWildcard(), c.wildcard)
		}
		if !c.wildcard && got.Value() != c.value {
			t.Errorf("CriterionFrom(%q).Value() = %q, want %q", c.raw, got.Value(), c.value)
		}
	}
}

func TestCriterionSentinel(t *testing.T) {
	if Wildcard().Sentinel() != WildcardSentinel {
		t.Errorf("Wildcard().Sentinel() = %q, want %q", Wildcard().Sentinel(), WildcardSentinel)
	}
	if Exact("x").Sentinel() != "x" {
		t.Errorf("Exact(x).Sentinel() = %q, want x", Exact("x").Sentinel())
	}
}

func TestMatchesWildcardSlugEmptyAssets(t *testing.T) {
	rule := &Rule{CollectionSlug: Wildcard(), ChannelID: Wildcard(), AttributeKey: Wildcard(), AttributeValue: Wildcard()}

	if !rule.Matches(nil, "any-channel") {
		t.Error("wildcard rule with minItems 0 should match empty assets")
	}

	rule.MinItems = 1
	if rule.Matches(nil, "any-channel") {
		t.Error("minItems 1 should reject empty assets")
	}
}

func TestMatchesSlug(t *testing.T) {
	rule := &Rule{
		CollectionSlug: Exact("cool-cats"),
		ChannelID:      Wildcard(),
		AttributeKey:   Wildcard(),
		AttributeValue: Wildcard(),
	}

	assets := []Asset{{Slug: "lazy-lions"}, {Slug: "cool-cats"}}
	if !rule.Matches(assets, "") {
		t.Error("expected slug match")
	}

	if rule.Matches([]Asset{{Slug: "lazy-lions"}}, "") {
		t.Error("expected slug mismatch")
	}
}

func TestMatchesAttributeCaseRules(t *testing.T) {
	rule := &Rule{
		CollectionSlug: Wildcard(),
		ChannelID:      Wildcard(),
		AttributeKey:   Exact("Background"),
		AttributeValue: Exact("OCEAN"),
	}

	// Value matches case-insensitively.
	assets := []Asset{{Slug: "x", Attributes: map[string]string{"Background": "ocean"}}}
	if !rule.Matches(assets, "") {
		t.Error("attribute value should match case-insensitively")
	}

	// Key is case-sensitive.
	assets = []Asset{{Slug: "x", Attributes: map[string]string{"background": "ocean"}}}
	if rule.Matches(assets, "") {
		t.Error("attribute key should be case-sensitive")
	}
}

func TestMatchesAttributeVacuouslyTrue(t *testing.T) {
	// The attribute gate only applies when both key AND value are set.
	rule := &Rule{
		CollectionSlug: Wildcard(),
		ChannelID:      Wildcard(),
		AttributeKey:   Exact("Background"),
		AttributeValue: Wildcard(),
	}
	if !rule.Matches([]Asset{{Slug: "x"}}, "") {
		t.Error("attribute gate with wildcard value should be vacuously true")
	}
}

func TestMatchesChannelScope(t *testing.T) {
	rule := &Rule{
		CollectionSlug: Wildcard(),
		ChannelID:      Exact("123"),
		AttributeKey:   Wildcard(),
		AttributeValue: Wildcard(),
	}

	assets := []Asset{{Slug: "x"}}
	if rule.Matches(assets, "456") {
		t.Error("channel mismatch must fail regardless of other fields")
	}
	if !rule.Matches(assets, "123") {
		t.Error("expected channel match")
	}
}

func TestMinItemsGatesOnTotalCount(t *testing.T) {
	// The minimum gate counts every asset held, not only matching ones.
	rule := &Rule{
		CollectionSlug: Exact("cool-cats"),
		ChannelID:      Wildcard(),
		AttributeKey:   Wildcard(),
		AttributeValue: Wildcard(),
		MinItems:       3,
	}

	assets := []Asset{{Slug: "cool-cats"}, {Slug: "lazy-lions"}, {Slug: "lazy-lions"}}
	if !rule.Matches(assets, "") {
		t.Error("minItems gate should count all assets, not only matching ones")
	}

	if rule.MatchingAssetCount(assets) != 1 {
		t.Errorf("MatchingAssetCount = %d, want 1", rule.MatchingAssetCount(assets))
	}
}

func TestMatchingAssetCountFiltersAttributes(t *testing.T) {
	rule := &Rule{
		CollectionSlug: Exact("cool-cats"),
		ChannelID:      Wildcard(),
		AttributeKey:   Exact("Hat"),
		AttributeValue: Exact("Beanie"),
	}

	assets := []Asset{
		{Slug: "cool-cats", Attributes: map[string]string{"Hat": "beanie"}},
		{Slug: "cool-cats", Attributes: map[string]string{"Hat": "Cap"}},
		{Slug: "lazy-lions", Attributes: map[string]string{"Hat": "Beanie"}},
	}
	if got := rule.MatchingAssetCount(assets); got != 1 {
		t.Errorf("MatchingAssetCount = %d, want 1", got)
	}
}
