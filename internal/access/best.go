package access

// Source is one candidate level for a user on a resource, either the user's
// direct grant or a grant held by a team the user actively belongs to.
type Source struct {
	Level    Level
	TeamID   string // empty for a direct grant
	TeamName string
}

// Direct reports whether the source is the user's own grant.
func (s Source) Direct() bool {
	return s.TeamID == ""
}

// Best folds candidate sources down to the single effective one. The winner
// is the highest level; a direct grant and a team grant of equal level are
// equivalent, so equal ranks fall back to direct-then-lowest-team-id purely
// to keep output deterministic. The second return is false when no source
// confers any access.
func Best(sources []Source) (Source, bool) {
	var best Source
	found := false

	for _, candidate := range sources {
		if !candidate.Level.Valid() {
			continue
		}
		if !found {
			best = candidate
			found = true
			continue
		}
		if best.Level.Less(candidate.Level) {
			best = candidate
			continue
		}
		if candidate.Level == best.Level && tieBreak(candidate, best) {
			best = candidate
		}
	}

	return best, found
}

func tieBreak(candidate, current Source) bool {
	if candidate.Direct() != current.Direct() {
		return candidate.Direct()
	}
	return candidate.TeamID < current.TeamID
}

// BestLevel is a convenience wrapper returning only the level.
func BestLevel(sources []Source) (Level, bool) {
	best, ok := Best(sources)
	return best.Level, ok
}
