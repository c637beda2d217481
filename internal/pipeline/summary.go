package pipeline

import (
	"sort"

	"github.com/sells-group/crimemap/internal/model"
)

// noRegionLabel groups incidents that fall outside every boundary.
const noRegionLabel = "(unincorporated / outside boundaries)"

// Summarize aggregates a snapshot into per-region bucket counts, sorted by
// region name. Incidents without a containing region are grouped under a
// single synthetic label so the dashboard can still show them.
func Summarize(snap *model.YearSnapshot) []model.RegionSummary {
	if snap.Empty() {
		return nil
	}

	byRegion := make(map[string]*model.RegionSummary)
	for _, inc := range snap.Incidents {
		region := inc.Region
		if region == "" {
			region = noRegionLabel
		}
		s, ok := byRegion[region]
		if !ok {
			s = &model.RegionSummary{
				Region: region,
				Counts: make(map[model.Bucket]int),
			}
			byRegion[region] = s
		}
		s.Total++
		s.Counts[inc.Bucket]++
	}

	out := make([]model.RegionSummary, 0, len(byRegion))
	for _, s := range byRegion {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })
	return out
}
