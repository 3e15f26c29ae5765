package worker

import "fmt"

// Kind is the closed set of worker kinds. Routing decisions carry a
// Kind, not a free-form name, so an unknown worker is caught when the
// decision is parsed rather than at dispatch.
type Kind int

const (
	// KindQuery answers questions directly from the tenant database.
	KindQuery Kind = iota
	// KindAnalyticsCrew fans out per-platform specialists and
	// synthesizes their findings.
	KindAnalyticsCrew
	// KindSingleAnalytics runs one platform's analysis in a single
	// reasoning loop. Primary delegation target.
	KindSingleAnalytics
	// KindCampaignPlanning is registered but not yet built.
	KindCampaignPlanning
)

var kindNames = map[Kind]string{
	KindQuery:            "basic_info_agent",
	KindAnalyticsCrew:    "analytics_crew",
	KindSingleAnalytics:  "single_analytics_agent",
	KindCampaignPlanning: "campaign_planning_crew",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("worker(%d)", int(k))
}

// ParseKind maps a wire name to a Kind.
func ParseKind(name string) (Kind, error) {
	k, ok := kindsByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown worker %q", name)
	}
	return k, nil
}

// Kinds returns all defined kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindQuery, KindAnalyticsCrew, KindSingleAnalytics, KindCampaignPlanning}
}
