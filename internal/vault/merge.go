package vault

import "strings"

// ImportMode controls how import conflicts (same site + username) resolve.
type ImportMode string

const (
	// ModeMerge fills gaps in the existing record from the imported one.
	ModeMerge ImportMode = "merge"
	// ModeSkip keeps the existing record untouched.
	ModeSkip ImportMode = "skip"
	// ModeOverwrite replaces the existing record wholesale.
	ModeOverwrite ImportMode = "overwrite"
)

// ImportStats summarizes an import run.
type ImportStats struct {
	Added   int
	Updated int
	Skipped int
}

type itemKey struct {
	site     string
	username string
}

func keyOf(it Item) itemKey {
	return itemKey{
		site:     strings.ToLower(strings.TrimSpace(it.SiteName)),
		username: strings.ToLower(strings.TrimSpace(it.Username)),
	}
}

// MergeItems folds imported items into existing ones according to mode and
// returns the resulting list plus counts. Imported items missing a site,
// username, or encrypted password are dropped silently, matching export
// files hand-edited or produced by older versions.
func MergeItems(existing, imported []Item, mode ImportMode) ([]Item, ImportStats) {
	result := make([]Item, len(existing))
	copy(result, existing)

	index := make(map[itemKey]int, len(existing))
	for i, it := range existing {
		k := keyOf(it)
		if k.site != "" || k.username != "" {
			index[k] = i
		}
	}

	var stats ImportStats
	for _, it := range imported {
		if it.SiteName == "" || it.Username == "" || it.EncryptedPassword == "" {
			continue
		}

		pos, found := index[keyOf(it)]
		if !found {
			index[keyOf(it)] = len(result)
			result = append(result, it)
			stats.Added++
			continue
		}

		switch mode {
		case ModeSkip:
			stats.Skipped++
		case ModeOverwrite:
			result[pos] = it
			stats.Updated++
		case ModeMerge:
			if mergeInto(&result[pos], it) {
				stats.Updated++
			} else {
				stats.Skipped++
			}
		}
	}

	return result, stats
}

// mergeInto copies secondary fields from src into dst where dst has none.
// Returns true when anything changed.
func mergeInto(dst *Item, src Item) bool {
	changed := false
	fill := func(target *string, value string) {
		if *target == "" && value != "" {
			*target = value
			changed = true
		}
	}
	fill(&dst.SiteURL, src.SiteURL)
	fill(&dst.SiteIcon, src.SiteIcon)
	fill(&dst.Category, src.Category)
	fill(&dst.Strength, src.Strength)
	if !dst.Favorite && src.Favorite {
		dst.Favorite = true
		changed = true
	}
	return changed
}
