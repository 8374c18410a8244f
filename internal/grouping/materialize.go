package grouping

import "sort"

type plannedGroup struct {
	groupID    int64
	newMembers []int64
	size       int
}

type groupPlan struct {
	creates []plannedGroup
	extends []plannedGroup
	demoted int
}

// planGroups applies the size rule. An anchored component counts the
// persisted size of its group plus the new members. Components without new
// members, and lone articles with no accepted edge, are left alone.
func planGroups(articles []Article, components []component, persisted map[int64]int, minSize int) groupPlan {
	var plan groupPlan
	for _, comp := range components {
		var newIDs []int64
		grouped := 0
		for _, idx := range comp.members {
			if articles[idx].Grouped() {
				grouped++
				continue
			}
			newIDs = append(newIDs, articles[idx].ID)
		}
		if len(newIDs) == 0 {
			continue
		}
		sort.Slice(newIDs, func(i, j int) bool { return newIDs[i] < newIDs[j] })

		if comp.anchor == 0 {
			if len(comp.members) < 2 {
				continue
			}
			if len(newIDs) < minSize {
				plan.demoted++
				continue
			}
			plan.creates = append(plan.creates, plannedGroup{newMembers: newIDs, size: len(newIDs)})
			continue
		}

		existing, ok := persisted[comp.anchor]
		if !ok || existing < grouped {
			existing = grouped
		}
		size := existing + len(newIDs)
		if size < minSize {
			plan.demoted++
			continue
		}
		plan.extends = append(plan.extends, plannedGroup{groupID: comp.anchor, newMembers: newIDs, size: size})
	}

	sort.SliceStable(plan.creates, func(i, j int) bool {
		return plan.creates[i].newMembers[0] < plan.creates[j].newMembers[0]
	})
	sort.SliceStable(plan.extends, func(i, j int) bool {
		return plan.extends[i].groupID < plan.extends[j].groupID
	})
	return plan
}
