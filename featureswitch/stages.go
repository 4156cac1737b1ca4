package featureswitch

// canonicalStages is the fixed set of deployment environments a new
// feature-switch file is created with, in rollout order. Existing documents
// may carry any subset; updates never add stages implicitly.
var canonicalStages = []string{
	"onebox",
	"daily",
	"dxt",
	"edog",
	"test",
	"integration",
	"msit",
	"prod",
	"mooncake",
	"fairfax",
	"blackforest",
	"usnat",
}

// CanonicalStages returns the fixed stage set in rollout order.
func CanonicalStages() []string {
	return append([]string(nil), canonicalStages...)
}
