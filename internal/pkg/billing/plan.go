package billing

import (
	"strings"

	"github.com/FelixWeidner/OpsForge/internal/pkg/entitlements"
)

const defaultPlan = entitlements.PlanFree

func normalizePlan(plan string) string {
	return string(entitlements.NormalizePlan(plan))
}

func planRank(plan string) int {
	return entitlements.PlanRank(entitlements.NormalizePlan(plan))
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case "month", "year":
		return i
	default:
		return "unknown"
	}
}
