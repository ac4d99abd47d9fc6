// Package catalog reads the default product catalog from YAML.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

type file struct {
	Products []productSpec `yaml:"products"`
}

type productSpec struct {
	ID           string                 `yaml:"id"`
	Code         string                 `yaml:"code"`
	Name         domain.LocalizedString `yaml:"name"`
	Description  domain.LocalizedString `yaml:"description"`
	Category     string                 `yaml:"category"`
	DisplayOrder int                    `yaml:"displayOrder"`
	Inactive     bool                   `yaml:"inactive"`
	Features     []featureSpec          `yaml:"features"`
	Quotas       []quotaSpec            `yaml:"quotas"`
	Plans        []planSpec             `yaml:"plans"`
}

type featureSpec struct {
	Code  string                 `yaml:"code"`
	Name  domain.LocalizedString `yaml:"name"`
	Type  string                 `yaml:"type"`
	Value string                 `yaml:"value"`
}

type quotaSpec struct {
	Type         string   `yaml:"type"`
	Limit        *float64 `yaml:"limit"`
	Unit         string   `yaml:"unit"`
	Enforced     *bool    `yaml:"enforced"`
	ResetMonthly bool     `yaml:"resetMonthly"`
}

type planSpec struct {
	ID        string `yaml:"id"`
	Period    string `yaml:"period"`
	Price     int64  `yaml:"price"`
	Currency  string `yaml:"currency"`
	TrialDays int    `yaml:"trialDays"`
}

// Load reads and validates the catalog at path
func Load(path string) ([]*domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes catalog YAML. Quotas without a limit are unlimited and
// quotas are enforced unless marked otherwise.
func Parse(data []byte) ([]*domain.Product, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	out := make([]*domain.Product, 0, len(f.Products))
	for _, ps := range f.Products {
		p := &domain.Product{
			ID:           ps.ID,
			Code:         ps.Code,
			Name:         ps.Name,
			Description:  ps.Description,
			Category:     ps.Category,
			IsActive:     !ps.Inactive,
			DisplayOrder: ps.DisplayOrder,
		}
		for _, fs := range ps.Features {
			p.Features = append(p.Features, domain.ProductFeature{
				Code:  fs.Code,
				Name:  fs.Name,
				Type:  domain.FeatureType(fs.Type),
				Value: fs.Value,
			})
		}
		for _, qs := range ps.Quotas {
			enforced := qs.Enforced == nil || *qs.Enforced
			p.Quotas = append(p.Quotas, domain.ProductQuota{
				QuotaType:    domain.QuotaType(qs.Type),
				Limit:        qs.Limit,
				Unit:         qs.Unit,
				IsEnforced:   enforced,
				IsUnlimited:  qs.Limit == nil,
				ResetMonthly: qs.ResetMonthly,
			})
		}
		for _, pl := range ps.Plans {
			p.Plans = append(p.Plans, domain.PricingPlan{
				ID:            pl.ID,
				ProductID:     ps.ID,
				BillingPeriod: domain.BillingPeriod(pl.Period),
				Price:         pl.Price,
				Currency:      pl.Currency,
				TrialDays:     pl.TrialDays,
				IsActive:      true,
			})
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("product %q: %w", ps.Code, err)
		}
		out = append(out, p)
	}
	return out, nil
}
