package entitlements

import "strings"

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanTeam       Plan = "team"
	PlanEnterprise Plan = "enterprise"
)

// NormalizePlan maps arbitrary input to a known plan, defaulting to free.
func NormalizePlan(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanPro):
		return PlanPro
	case string(PlanTeam):
		return PlanTeam
	case string(PlanEnterprise):
		return PlanEnterprise
	default:
		return PlanFree
	}
}

// PlanRank orders plans from free upwards so the best of several
// subscriptions can be selected.
func PlanRank(plan Plan) int {
	switch plan {
	case PlanEnterprise:
		return 3
	case PlanTeam:
		return 2
	case PlanPro:
		return 1
	default:
		return 0
	}
}

// RateQuota holds the request allowance per fixed window.
type RateQuota struct {
	PerMinute int
	PerHour   int
	PerDay    int
	PerMonth  int
}

// QuotaFor returns the rate-limit allowance for a plan.
func QuotaFor(plan Plan) RateQuota {
	switch plan {
	case PlanEnterprise:
		return RateQuota{PerMinute: 120, PerHour: 3000, PerDay: 30000, PerMonth: 500000}
	case PlanTeam:
		return RateQuota{PerMinute: 60, PerHour: 1500, PerDay: 15000, PerMonth: 200000}
	case PlanPro:
		return RateQuota{PerMinute: 30, PerHour: 600, PerDay: 5000, PerMonth: 50000}
	default:
		return RateQuota{PerMinute: 5, PerHour: 50, PerDay: 200, PerMonth: 2000}
	}
}

// MaxInputBytes returns the largest accepted text input for a plan.
func MaxInputBytes(plan Plan) int {
	switch plan {
	case PlanEnterprise, PlanTeam:
		return 256 * 1024
	case PlanPro:
		return 64 * 1024
	default:
		return 8 * 1024
	}
}
