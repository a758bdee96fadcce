package granule

import (
	"github.com/icefield/velocube/internal/logging"
)

var dedupLog = logging.Component("dedup")

// Deduplicate resolves reprocessing duplicates among candidate granule
// URLs. Candidates are grouped by physical-pair key; within a group only
// the most recently processed version survives, with two refinements:
//
//   - a candidate whose both processing dates exactly equal a kept one's is
//     kept alongside it (the two may sit in different projections and each
//     must get a chance at acceptance);
//   - a candidate whose first image's processing date is strictly newer
//     replaces the kept one even when the second image's date is not
//     dominant; the preference for the first image is intentional.
//
// The returned keep list concatenates each group's survivors with groups in
// first-seen order, so the result is deterministic for a given input order
// and idempotent. skipped collects the discarded URLs.
func Deduplicate(urls []string) (keep, skipped []string, err error) {
	groups := make(map[string][]Identifier)
	var order []string

	for _, url := range urls {
		id, err := ParseIdentifier(url)
		if err != nil {
			return nil, nil, err
		}

		key := id.PairKey()
		kept, seen := groups[key]
		if !seen {
			groups[key] = []Identifier{id}
			order = append(order, key)
			continue
		}

		// Identical processing dates on both images: keep both versions.
		identical := false
		for _, other := range kept {
			if id.ProcDate1.Equal(other.ProcDate1) && id.ProcDate2.Equal(other.ProcDate2) {
				identical = true
				break
			}
		}
		if identical {
			groups[key] = append(kept, id)
			continue
		}

		// Replace every kept version the candidate supersedes.
		var survivors []Identifier
		var removed []string
		for _, other := range kept {
			dominates := !id.ProcDate1.Before(other.ProcDate1) &&
				!id.ProcDate2.Before(other.ProcDate2)
			firstNewer := id.ProcDate1.After(other.ProcDate1)

			if dominates || firstNewer {
				removed = append(removed, other.URL)
			} else {
				survivors = append(survivors, other)
			}
		}

		if len(removed) > 0 {
			dedupLog.Debug("superseded by newer processing",
				"kept", id.URL, "removed", removed)
			skipped = append(skipped, removed...)
			groups[key] = append(survivors, id)
		} else {
			// The candidate supersedes nothing: it is the older
			// reprocessing and is discarded.
			dedupLog.Debug("skipping older processing", "url", id.URL)
			skipped = append(skipped, id.URL)
		}
	}

	for _, key := range order {
		for _, id := range groups[key] {
			keep = append(keep, id.URL)
		}
	}

	dedupLog.Info("deduplicated candidate granules",
		"found", len(urls), "kept", len(keep), "skipped", len(skipped))

	return keep, skipped, nil
}
