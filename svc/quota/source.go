package quota

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coachkit/creditledger/svc/ledger"
)

// Source loads plans keyed by tier.
type Source interface {
	Load(ctx context.Context) (map[ledger.Tier]Plan, error)
}

// MemorySource serves a fixed set of plans.
type MemorySource struct {
	plans map[ledger.Tier]Plan
}

// NewMemorySource copies plans so later changes by the caller are not seen.
func NewMemorySource(plans map[ledger.Tier]Plan) *MemorySource {
	return &MemorySource{plans: clonePlans(plans)}
}

func (s *MemorySource) Load(context.Context) (map[ledger.Tier]Plan, error) {
	return clonePlans(s.plans), nil
}

// YAMLSource reads plans from a YAML document of the form:
//
//	tiers:
//	  free:
//	    name: Free
//	    initial_grant: 250
//	    limits:
//	      chat: 30
//	      replay_upload: 3
//	  pro:
//	    limits:
//	      chat: -1
type YAMLSource struct {
	path string
}

func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

type yamlPlans struct {
	Tiers map[ledger.Tier]Plan `yaml:"tiers"`
}

func (s *YAMLSource) Load(ctx context.Context) (map[ledger.Tier]Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a plans document.
func ParseYAML(data []byte) (map[ledger.Tier]Plan, error) {
	var doc yamlPlans
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	plans := make(map[ledger.Tier]Plan, len(doc.Tiers))
	for tier, p := range doc.Tiers {
		p.Tier = tier
		plans[tier] = p
	}
	return plans, nil
}

// DefaultPlans mirrors the product's published tiers.
func DefaultPlans() map[ledger.Tier]Plan {
	return map[ledger.Tier]Plan{
		ledger.TierFree: {
			Tier:         ledger.TierFree,
			Name:         "Free",
			InitialGrant: 250,
			Limits: map[Feature]int64{
				"chat":          30,
				"stat_pull":     100,
				"replay_upload": 3,
			},
		},
		ledger.TierPro: {
			Tier:         ledger.TierPro,
			Name:         "Pro",
			InitialGrant: 5000,
			RenewalGrant: 5000,
			Limits: map[Feature]int64{
				"chat":          Unlimited,
				"stat_pull":     Unlimited,
				"replay_upload": 50,
			},
		},
	}
}

// ValidatePlans checks tiers and limits. Every error found is returned.
func ValidatePlans(plans map[ledger.Tier]Plan) error {
	if len(plans) == 0 {
		return fmt.Errorf("%w: no plans", ErrInvalidPlanConfiguration)
	}
	var errs []error
	for tier, p := range plans {
		if !tier.Valid() {
			errs = append(errs, fmt.Errorf("%w: unknown tier %q", ErrInvalidPlanConfiguration, tier))
		}
		if p.Tier != "" && p.Tier != tier {
			errs = append(errs, fmt.Errorf("%w: plan %q stored under tier %q", ErrInvalidPlanConfiguration, p.Tier, tier))
		}
		if p.InitialGrant < 0 || p.RenewalGrant < 0 {
			errs = append(errs, fmt.Errorf("%w: tier %q has a negative grant", ErrInvalidPlanConfiguration, tier))
		}
		for f, limit := range p.Limits {
			if f == "" {
				errs = append(errs, fmt.Errorf("%w: tier %q has an empty feature key", ErrInvalidPlanConfiguration, tier))
			}
			if limit < Unlimited {
				errs = append(errs, fmt.Errorf("%w: tier %q feature %q limit %d", ErrInvalidPlanConfiguration, tier, f, limit))
			}
		}
	}
	return errors.Join(errs...)
}

func clonePlans(in map[ledger.Tier]Plan) map[ledger.Tier]Plan {
	out := make(map[ledger.Tier]Plan, len(in))
	for tier, p := range in {
		p.Limits = maps.Clone(p.Limits)
		out[tier] = p
	}
	return out
}
