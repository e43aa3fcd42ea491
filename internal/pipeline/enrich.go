package pipeline

import (
	"askgive/internal"
	"askgive/internal/reference"
)

// EnrichMembers keeps only the candidates that resolve to a reference member
// and copies the reference member's directory details onto them. Gives, asks,
// name, id and avatar of the candidate are preserved.
func EnrichMembers(candidates []internal.Member, idx *reference.Index) []internal.Member {
	out := make([]internal.Member, 0, len(candidates))
	for _, candidate := range candidates {
		known, ok := idx.Find(candidate.Name)
		if !ok {
			continue
		}
		out = append(out, enrichFrom(candidate, known))
	}
	return out
}

func enrichFrom(candidate, known internal.Member) internal.Member {
	candidate.Company = firstNonEmpty(known.Company, internal.DefaultCompany)
	candidate.Specialty = firstNonEmpty(known.Specialty, internal.DefaultSpecialty)
	candidate.PhoneNumber = known.PhoneNumber
	candidate.ChapterRole = known.ChapterRole
	if candidate.Gives == nil {
		candidate.Gives = []string{}
	}
	if candidate.Asks == nil {
		candidate.Asks = []string{}
	}
	return candidate
}
