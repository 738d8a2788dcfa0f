package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rflorenc/pan-deduper/internal/models"
)

func permit(name, source string) models.SecurityRule {
	return models.SecurityRule{
		Name: name, Unit: "test", OwningUnit: "test", Action: "allow",
		From: []string{"inside"}, Sources: []string{source}, Destinations: []string{"9.9.9.9/32"},
		Services: []string{"test"}, Applications: []string{"test"},
	}
}

func TestFindMergesAndRender(t *testing.T) {
	rules := []models.SecurityRule{
		permit("rule1", "1.1.1.1/32"),
		permit("rule2", "2.2.2.2/32"),
		permit("rule3", "3.3.3.3/32"),
		permit("rule4", "4.4.4.4/32"),
	}
	merges := FindMerges(rules)
	require.Len(t, merges, 3)
	assert.Equal(t, "rule1", merges[0].Rule.Name)
	assert.Len(t, merges[0].Absorbed, 3)

	assert.Equal(t, []string{
		"set device-group test pre-rulebase security rules 'rule1' source 2.2.2.2/32",
		"delete device-group test pre-rulebase security rules 'rule2'",
		"set device-group test pre-rulebase security rules 'rule1' source 3.3.3.3/32",
		"delete device-group test pre-rulebase security rules 'rule3'",
		"set device-group test pre-rulebase security rules 'rule1' source 4.4.4.4/32",
		"delete device-group test pre-rulebase security rules 'rule4'",
		"",
	}, Render("test", "pre-rulebase", merges))
}

func TestFindMerges_StopsAtDeny(t *testing.T) {
	deny := permit("block", "any")
	deny.Action = "deny"
	rules := []models.SecurityRule{permit("rule1", "1.1.1.1/32"), deny, permit("rule2", "2.2.2.2/32")}
	merges := FindMerges(rules)
	require.Len(t, merges, 0)
}

func TestFindMerges_InheritedAndDifferent(t *testing.T) {
	inherited := permit("parent-rule", "5.5.5.5/32")
	inherited.OwningUnit = "parent"
	other := permit("other", "6.6.6.6/32")
	other.Services = []string{"ssh"}
	zones := permit("zones", "7.7.7.7/32")
	zones.From = []string{"inside", "dmz"}

	rules := []models.SecurityRule{inherited, permit("rule1", "1.1.1.1/32"), other, zones, permit("rule2", "2.2.2.2/32")}
	merges := FindMerges(rules)
	require.Len(t, merges, 1)
	assert.Equal(t, "rule1", merges[0].Rule.Name)
	require.Len(t, merges[0].Absorbed, 1)
	assert.Equal(t, "rule2", merges[0].Absorbed[0].Name)
}

func TestRender_AnySource(t *testing.T) {
	merges := []Merge{{Rule: permit("rule1", "1.1.1.1/32"), Absorbed: []models.SecurityRule{permit("rule2", "any")}}}
	assert.Equal(t, []string{
		"set device-group test post-rulebase security rules 'rule1' source any",
		"delete device-group test post-rulebase security rules 'rule1' source",
		"delete device-group test post-rulebase security rules 'rule2'",
		"",
	}, Render("test", "post-rulebase", merges))
}

type ruleSource map[string][]models.SecurityRule

func (s ruleSource) FetchSecurityRules(ctx context.Context, unit, rulebase string) ([]models.SecurityRule, error) {
	if unit == "broken" {
		return nil, errors.New("HTTP 500")
	}
	return s[unit+"/"+rulebase], nil
}

func TestDeduper_Run(t *testing.T) {
	src := ruleSource{
		"test/pre-rulebase": {permit("rule1", "1.1.1.1/32"), permit("rule2", "2.2.2.2/32")},
	}
	d := &Deduper{Source: src, MaxConcurrency: 2}
	out, err := d.Run(context.Background(), []string{"test"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--------- PRE-RULEBASE ---------",
		"set device-group test pre-rulebase security rules 'rule1' source 2.2.2.2/32",
		"delete device-group test pre-rulebase security rules 'rule2'",
		"",
		"--------- POST-RULEBASE ---------",
	}, out["test"])

	_, err = d.Run(context.Background(), []string{"test", "broken"})
	assert.ErrorContains(t, err, "from broken: HTTP 500")
}
