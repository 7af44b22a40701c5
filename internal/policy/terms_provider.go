package policy

import (
	"context"
	"errors"

	"go-leave/internal/balance"

	"gorm.io/gorm"
)

// TermsProvider adapts the policy store to the ledger's PolicyReader, so the
// balance module never imports this package.
type TermsProvider struct {
	repo Repository
}

func NewTermsProvider(repo Repository) *TermsProvider {
	return &TermsProvider{repo: repo}
}

func (t *TermsProvider) ActiveTerms(ctx context.Context, companyID, leaveType string) (*balance.PolicyTerms, error) {
	p, err := t.repo.FindActiveByType(ctx, companyID, leaveType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	terms := p.Terms()
	return &terms, nil
}

func (t *TermsProvider) ActiveTermsAll(ctx context.Context, companyID string) ([]balance.PolicyTerms, error) {
	policies, err := t.repo.FindAllActive(ctx, companyID)
	if err != nil {
		return nil, err
	}
	terms := make([]balance.PolicyTerms, len(policies))
	for i, p := range policies {
		terms[i] = p.Terms()
	}
	return terms, nil
}
