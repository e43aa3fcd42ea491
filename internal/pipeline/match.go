package pipeline

import (
	"math"
	"sort"

	"askgive/internal"
	"askgive/internal/config"
	"askgive/internal/util"
)

const localMatchReason = "keyword overlap"

// Matcher pairs a member's asks with other members' gives without calling a
// model. It backs the AI match finder when that is unavailable.
type Matcher struct {
	minScore   float64
	maxResults int
}

func NewMatcher(cfg config.Config) *Matcher {
	return &Matcher{minScore: cfg.MatchMinScore, maxResults: cfg.MatchMaxResults}
}

func (m *Matcher) Match(target internal.Member, candidates []internal.Member) []internal.SmartMatch {
	asks := make([]scoredText, 0, len(target.Asks))
	for _, ask := range target.Asks {
		if n := util.NormalizeText(ask); n != "" {
			asks = append(asks, scoredText{raw: ask, normalized: n, tokens: util.Tokenize(n)})
		}
	}

	out := []internal.SmartMatch{}
	if len(asks) == 0 {
		return out
	}

	for _, cand := range candidates {
		if cand.Name == target.Name || (target.ID != "" && cand.ID == target.ID) {
			continue
		}

		var best *internal.SmartMatch
		bestScore := 0.0
		for _, give := range cand.Gives {
			g := util.NormalizeText(give)
			if g == "" {
				continue
			}
			gTokens := util.Tokenize(g)
			for _, ask := range asks {
				score := scoreText(ask.normalized, g, ask.tokens, gTokens)
				if score < m.minScore {
					continue
				}
				if best == nil || score > bestScore {
					bestScore = score
					best = &internal.SmartMatch{
						Member:      cand.Name,
						Give:        give,
						MatchingAsk: ask.raw,
						Score:       math.Round(score * 100),
						Reason:      localMatchReason,
						Source:      internal.MatchSourceLocal,
					}
				}
			}
		}
		if best != nil {
			out = append(out, *best)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if m.maxResults > 0 && len(out) > m.maxResults {
		out = out[:m.maxResults]
	}
	return out
}

type scoredText struct {
	raw        string
	normalized string
	tokens     []string
}

func scoreText(query, candidate string, queryTokens, candidateTokens []string) float64 {
	dice := util.DiceCoefficient(query, candidate)
	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return dice
	}

	set := map[string]struct{}{}
	for _, t := range candidateTokens {
		set[t] = struct{}{}
	}
	overlap := 0
	for _, t := range queryTokens {
		if _, ok := set[t]; ok {
			overlap++
		}
	}
	tokenScore := float64(overlap) / float64(len(queryTokens))
	return 0.65*dice + 0.35*tokenScore
}
