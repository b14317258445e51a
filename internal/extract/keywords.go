// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// DefaultKeywords is the built-in bilingual (English/Finnish) keyword set
// indicating business-model signals. Order is significant: snippets are
// extracted keyword by keyword in this order, so reruns yield the same
// snippet sequence.
var DefaultKeywords = []string{
	// Business model core terms.
	"business model", "liiketoimintamalli", "revenue model", "tuottomalli",
	"pricing strategy", "hinnoittelustrategia", "value proposition", "arvolupaus",
	"competitive advantage", "kilpailuetu", "methodology", "menetelmä",

	// SaaS and subscription models.
	"software as a service", "saas", "subscription", "tilaus", "recurring revenue",
	"monthly recurring revenue", "multi-tenant", "pay-per-user",
	"cloud-based", "pilvipalvelu",

	// Platform and marketplace.
	"platform business", "alustatalous", "two-sided market", "marketplace",
	"ecosystem", "ekosysteemi", "network effects", "verkostovaikutus",
	"api strategy", "third-party developers", "integrations", "integraatiot",

	// Consulting and professional services.
	"custom development", "räätälöinti", "bespoke solutions", "professional services",
	"consulting", "konsultointi", "project-based", "projektipohjainen",
	"time and materials", "implementation", "toteutus",

	// Product and licensing.
	"product strategy", "tuotestrategia", "license", "lisenssi",
	"perpetual license", "one-time purchase", "product sales",

	// Freemium and pricing models.
	"freemium", "free tier", "upgrade path", "premium features",
	"value-based pricing", "arvopohjainen hinnoittelu", "outcome-based",
	"tulospohjainen", "performance-based", "suorituspohjainen",

	// Service delivery.
	"service delivery", "palvelutoimitustapa", "customer onboarding",
	"implementation process", "delivery model", "toimitusmalli",
	"customer success", "asiakaslähtöisyys",

	// Partnerships and growth.
	"partnerships", "kumppanuudet", "growth strategy", "kasvustrategia",
	"scalable", "skaalautuva", "automation", "automaatio",

	// Differentiation and segments.
	"managed service", "hallinnoitu palvelu", "open source", "avoin lähdekoodi",
	"differentiation", "erottautuminen", "niche", "markkinarako",
	"customer segment", "asiakassegmentti", "case study", "asiakastarina",
}

// LoadKeywords reads a keyword set from a YAML file: a flat list of
// strings. Used to override DefaultKeywords per study.
func LoadKeywords(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keywords file: %w", err)
	}
	var keywords []string
	if err := yaml.Unmarshal(data, &keywords); err != nil {
		return nil, fmt.Errorf("parsing keywords file %s: %w", path, err)
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("keywords file %s is empty", path)
	}
	return keywords, nil
}
