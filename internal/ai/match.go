package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"askgive/internal"
	"askgive/internal/config"
	"askgive/internal/util"
)

const matchPrompt = `I am looking for business networking matches.

TARGET MEMBER: %q
TARGET ASKS (what they are looking for): %s

CANDIDATES (other members and what they GIVE):
%s

TASK:
Identify candidates who give something that satisfies one of the target's asks.

REQUIREMENTS:
1. %s
2. Match on meaning, not only keywords ("Web Dev" matches "Website needed").
3. Give a short specific reason, at most 15 words, citing a search finding when relevant.
4. Assign a confidence score from 0 to 100. Only return matches with score > %g.
5. Only match the target's ASKS with a candidate's GIVES. Ignore candidates' asks.

Output a JSON array: [{"member": string, "give": string, "matchingAsk": string, "score": number, "reason": string}]`

const (
	groundedRule   = "Use Google Search to verify the companies, products or services mentioned so associations are real."
	ungroundedRule = "Use your own knowledge of the companies, products or services mentioned."
)

var matchSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"member":      {Type: genai.TypeString},
			"give":        {Type: genai.TypeString},
			"matchingAsk": {Type: genai.TypeString},
			"score":       {Type: genai.TypeNumber},
			"reason":      {Type: genai.TypeString},
		},
		Required: []string{"member", "give", "matchingAsk", "score", "reason"},
	},
}

type candidateGives struct {
	Name  string   `json:"name"`
	Gives []string `json:"gives"`
}

type MatchFinder struct {
	gen      Generator
	grounded bool
	minScore float64
	log      *zap.Logger
}

func NewMatchFinder(gen Generator, cfg config.Config, log *zap.Logger) *MatchFinder {
	if log == nil {
		log = zap.NewNop()
	}
	return &MatchFinder{gen: gen, grounded: cfg.GeminiGrounding, minScore: cfg.AIMatchMinScore, log: log}
}

// Find returns candidates whose gives satisfy one of the target's asks,
// best score first.
func (f *MatchFinder) Find(ctx context.Context, target internal.Member, candidates []internal.Member) ([]internal.SmartMatch, error) {
	if f == nil || f.gen == nil {
		return nil, ErrNotConfigured
	}

	known := map[string]string{}
	others := make([]candidateGives, 0, len(candidates))
	for _, c := range candidates {
		if c.Name == target.Name {
			continue
		}
		known[util.NameKey(c.Name)] = c.Name
		gives := c.Gives
		if gives == nil {
			gives = []string{}
		}
		others = append(others, candidateGives{Name: c.Name, Gives: gives})
	}
	if len(others) == 0 || len(target.Asks) == 0 {
		return []internal.SmartMatch{}, nil
	}

	asksJSON, err := json.Marshal(target.Asks)
	if err != nil {
		return nil, err
	}
	othersJSON, err := json.Marshal(others)
	if err != nil {
		return nil, err
	}
	rule := ungroundedRule
	if f.grounded {
		rule = groundedRule
	}
	prompt := fmt.Sprintf(matchPrompt, target.Name, asksJSON, othersJSON, rule, f.minScore)

	resp, err := f.gen.Generate(ctx, Request{Prompt: prompt, Schema: matchSchema, Grounded: f.grounded})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return []internal.SmartMatch{}, nil
	}

	var decoded []internal.SmartMatch
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode matches: %w", ErrModel, err)
	}

	out := make([]internal.SmartMatch, 0, len(decoded))
	for _, m := range decoded {
		name, ok := known[util.NameKey(m.Member)]
		if !ok || m.Score <= f.minScore {
			continue
		}
		m.Member = name
		m.Source = internal.MatchSourceAI
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	f.log.Debug("ai matches",
		zap.String("member", target.Name),
		zap.Int("returned", len(decoded)),
		zap.Int("kept", len(out)),
		zap.Strings("sources", resp.Sources),
	)
	return out, nil
}
