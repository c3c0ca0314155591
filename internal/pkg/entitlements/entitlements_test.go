package entitlements

import "testing"

func TestNormalizePlan(t *testing.T) {
	cases := map[string]Plan{
		"pro":        PlanPro,
		" PRO ":      PlanPro,
		"team":       PlanTeam,
		"enterprise": PlanEnterprise,
		"free":       PlanFree,
		"":           PlanFree,
		"platinum":   PlanFree,
	}
	for in, want := range cases {
		if got := NormalizePlan(in); got != want {
			t.Errorf("NormalizePlan(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPlanRankOrdering(t *testing.T) {
	if !(PlanRank(PlanFree) < PlanRank(PlanPro) &&
		PlanRank(PlanPro) < PlanRank(PlanTeam) &&
		PlanRank(PlanTeam) < PlanRank(PlanEnterprise)) {
		t.Fatalf("plan ranks are not strictly increasing: free=%d pro=%d team=%d enterprise=%d",
			PlanRank(PlanFree), PlanRank(PlanPro), PlanRank(PlanTeam), PlanRank(PlanEnterprise))
	}
}

func TestQuotaForScalesWithPlan(t *testing.T) {
	free := QuotaFor(PlanFree)
	pro := QuotaFor(PlanPro)
	ent := QuotaFor(PlanEnterprise)

	if free.PerMinute != 5 || free.PerMonth != 2000 {
		t.Errorf("unexpected free quota: %+v", free)
	}
	if pro.PerMinute <= free.PerMinute || pro.PerMonth <= free.PerMonth {
		t.Errorf("pro quota does not exceed free: pro=%+v free=%+v", pro, free)
	}
	if ent.PerDay != 30000 {
		t.Errorf("unexpected enterprise daily quota: %d", ent.PerDay)
	}
}

func TestMaxInputBytes(t *testing.T) {
	if got := MaxInputBytes(PlanFree); got != 8*1024 {
		t.Errorf("free max input = %d, want %d", got, 8*1024)
	}
	if got := MaxInputBytes(PlanPro); got != 64*1024 {
		t.Errorf("pro max input = %d, want %d", got, 64*1024)
	}
	if MaxInputBytes(PlanTeam) != MaxInputBytes(PlanEnterprise) {
		t.Error("team and enterprise should share the same input ceiling")
	}
}
