package service

import "sort"

// rank orders items by preference match, distance (unknown last), priority,
// soonest expiry, newest creation and finally id, so equal inputs always
// produce the same order.
func rank(items []Item, preferred map[string]struct{}) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if pa, pb := a.Donation.HasAnyFoodType(preferred), b.Donation.HasAnyFoodType(preferred); pa != pb {
			return pa
		}
		switch {
		case a.DistanceKm != nil && b.DistanceKm == nil:
			return true
		case a.DistanceKm == nil && b.DistanceKm != nil:
			return false
		case a.DistanceKm != nil && *a.DistanceKm != *b.DistanceKm:
			return *a.DistanceKm < *b.DistanceKm
		}
		if ra, rb := a.Donation.Priority.Rank(), b.Donation.Priority.Rank(); ra != rb {
			return ra > rb
		}
		if !a.Donation.ExpiresAt.Equal(b.Donation.ExpiresAt) {
			return a.Donation.ExpiresAt.Before(b.Donation.ExpiresAt)
		}
		if !a.Donation.CreatedAt.Equal(b.Donation.CreatedAt) {
			return a.Donation.CreatedAt.After(b.Donation.CreatedAt)
		}
		return a.Donation.ID.String() < b.Donation.ID.String()
	})
}

func paginate(ranked []Item, page, pageSize int) ([]Item, Pagination) {
	p := Pagination{Page: page, PageSize: pageSize, HasPrevPage: page > 1}
	start := (page - 1) * pageSize
	if start >= len(ranked) {
		return []Item{}, p
	}
	end := start + pageSize
	if end > len(ranked) {
		end = len(ranked)
	}
	items := ranked[start:end]
	p.Count = len(items)
	p.HasNextPage = len(ranked) > end
	return items, p
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}
