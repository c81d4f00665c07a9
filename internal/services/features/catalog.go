// Package features loads the tier catalog and answers feature
// entitlement questions for the publisher and the credit ledger.
package features

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/interfaces"
	"gopkg.in/yaml.v3"
)

// Feature names used by the core.
const (
	FeaturePublish = "publish"
)

// DefaultTier is assigned to owners without a ledger record.
const DefaultTier = "free"

// Tier describes one quota/feature profile from the catalog file.
type Tier struct {
	Name       string   `yaml:"name"`
	CreditsMax int      `yaml:"credits_max"`
	Features   []string `yaml:"features"`
	UpgradeTo  string   `yaml:"upgrade_to,omitempty"` // next tier suggested on quota rejection
}

// Catalog is the set of known tiers, loaded from YAML at startup.
type Catalog struct {
	tiers  map[string]Tier
	logger arbor.ILogger
}

// catalogFile is the on-disk shape of the tier catalog.
type catalogFile struct {
	Tiers []Tier `yaml:"tiers"`
}

// builtinTiers is used when no catalog file is configured.
var builtinTiers = []Tier{
	{Name: "free", CreditsMax: 3, Features: nil, UpgradeTo: "pro"},
	{Name: "pro", CreditsMax: 25, Features: []string{FeaturePublish}, UpgradeTo: "business"},
	{Name: "business", CreditsMax: 100, Features: []string{FeaturePublish}},
}

// LoadCatalog reads the tier catalog from the given YAML file.
// An empty path falls back to the built-in tiers.
func LoadCatalog(path string, logger arbor.ILogger) (*Catalog, error) {
	tiers := builtinTiers

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read tier catalog: %w", err)
			}
			logger.Debug().Str("path", path).Msg("Tier catalog file not found, using built-in tiers")
		} else {
			var file catalogFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return nil, fmt.Errorf("failed to parse tier catalog: %w", err)
			}
			if len(file.Tiers) > 0 {
				tiers = file.Tiers
			}
		}
	}

	catalog := &Catalog{
		tiers:  make(map[string]Tier, len(tiers)),
		logger: logger,
	}
	for _, tier := range tiers {
		if tier.Name == "" {
			return nil, fmt.Errorf("tier catalog contains a tier without a name")
		}
		catalog.tiers[tier.Name] = tier
	}
	if _, ok := catalog.tiers[DefaultTier]; !ok {
		return nil, fmt.Errorf("tier catalog must define the %q tier", DefaultTier)
	}

	logger.Info().Int("tiers", len(catalog.tiers)).Msg("Tier catalog loaded")
	return catalog, nil
}

// Tier returns the named tier, falling back to the default tier when unknown.
func (c *Catalog) Tier(name string) Tier {
	if tier, ok := c.tiers[name]; ok {
		return tier
	}
	return c.tiers[DefaultTier]
}

// Gate answers feature entitlement from a tier catalog and ledger storage.
type Gate struct {
	catalog *Catalog
	ledgers interfaces.LedgerStorage
	logger  arbor.ILogger
}

// NewGate creates a feature gate backed by the catalog and ledger records.
func NewGate(catalog *Catalog, ledgers interfaces.LedgerStorage, logger arbor.ILogger) *Gate {
	return &Gate{
		catalog: catalog,
		ledgers: ledgers,
		logger:  logger,
	}
}

// HasFeature reports whether the owner's tier grants the named feature.
// Owners without a ledger record are treated as the default tier.
func (g *Gate) HasFeature(ctx context.Context, ownerID string, feature string) (bool, error) {
	tierName := DefaultTier
	ledger, err := g.ledgers.GetLedger(ctx, ownerID)
	if err != nil && err != interfaces.ErrNotFound {
		return false, fmt.Errorf("failed to resolve owner tier: %w", err)
	}
	if ledger != nil {
		tierName = ledger.Tier
	}

	tier := g.catalog.Tier(tierName)
	for _, f := range tier.Features {
		if f == feature {
			return true, nil
		}
	}
	return false, nil
}

var _ interfaces.FeatureGate = (*Gate)(nil)
