package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
)

type EligibilityUseCase struct {
	catalog ports.PolicyCatalog
}

func NewEligibilityUseCase(catalog ports.PolicyCatalog) *EligibilityUseCase {
	return &EligibilityUseCase{catalog: catalog}
}

// Check returns the names of policies whose rules the profile satisfies, in
// catalogue order.
func (uc *EligibilityUseCase) Check(ctx context.Context, profile domain.FarmerProfile) ([]string, error) {
	if strings.TrimSpace(profile.State) == "" || strings.TrimSpace(profile.FarmerType) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "check eligibility", errors.New("state and farmer_type are required"))
	}
	if profile.LandHolding < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "check eligibility", fmt.Errorf("land_holding=%v", profile.LandHolding))
	}
	if uc.catalog == nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "check eligibility", errors.New("policy catalog is not configured"))
	}

	rules, err := uc.catalog.ListPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}

	eligible := make([]string, 0, len(rules))
	for _, rule := range rules {
		if ruleMatches(rule, profile) {
			eligible = append(eligible, rule.Policy)
		}
	}
	return eligible, nil
}

func ruleMatches(rule domain.PolicyRule, profile domain.FarmerProfile) bool {
	if !matchesOrAll(rule.State, profile.State) {
		return false
	}
	if !matchesOrAll(rule.FarmerType, profile.FarmerType) {
		return false
	}
	if rule.MaxLandHolding != nil && profile.LandHolding > *rule.MaxLandHolding {
		return false
	}
	return true
}

func matchesOrAll(ruleValue, value string) bool {
	ruleValue = strings.TrimSpace(ruleValue)
	return strings.EqualFold(ruleValue, domain.EligibilityAll) || strings.EqualFold(ruleValue, strings.TrimSpace(value))
}
