package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"askgive/internal"
	"askgive/internal/config"
	"askgive/internal/util"
)

const (
	cleanedCompany   = "BNI Member"
	cleanedSpecialty = "Member"
)

const cleanPrompt = `You are a data cleaner for a BNI business networking chapter.

INPUT DATA:
%s

TASK:
1. Extract the list of members from the messy input.
2. For each member identify:
   - name (clean, title case)
   - gives: specific services, products or industries they offer. Clean up keywords.
   - asks: what they are looking for. Clean up keywords.
3. Ignore headers, footers, empty rows and rows that are not member data.
4. Gives and asks must be services, products or industries. If the input has "Manish (Builder)" the give is "Builder", not "Manish". Remove names of other people.

Output a JSON array: [{"name": string, "gives": string[], "asks": string[]}]`

var cleanSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":  {Type: genai.TypeString},
			"gives": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"asks":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"name", "gives", "asks"},
	},
}

type cleanedMember struct {
	Name  string   `json:"name"`
	Gives []string `json:"gives"`
	Asks  []string `json:"asks"`
}

type Cleaner struct {
	gen      Generator
	maxChars int
	log      *zap.Logger
}

func NewCleaner(gen Generator, cfg config.Config, log *zap.Logger) *Cleaner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cleaner{gen: gen, maxChars: cfg.AICleanMaxChars, log: log}
}

// Clean asks the model to turn free-form roster text into members. Returned
// members carry placeholder company and specialty until enrichment.
func (c *Cleaner) Clean(ctx context.Context, raw string) ([]internal.Member, error) {
	if c == nil || c.gen == nil {
		return nil, ErrNotConfigured
	}
	raw = truncateRunes(raw, c.maxChars)
	if strings.TrimSpace(raw) == "" {
		return []internal.Member{}, nil
	}

	resp, err := c.gen.Generate(ctx, Request{Prompt: fmt.Sprintf(cleanPrompt, raw), Schema: cleanSchema})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return []internal.Member{}, nil
	}

	var decoded []cleanedMember
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode cleaned roster: %w", ErrModel, err)
	}

	out := make([]internal.Member, 0, len(decoded))
	for i, d := range decoded {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		out = append(out, internal.Member{
			ID:        fmt.Sprintf("ai-clean-%d", i),
			Name:      name,
			Company:   cleanedCompany,
			Specialty: cleanedSpecialty,
			Gives:     util.UniqueTrimmed(d.Gives),
			Asks:      util.UniqueTrimmed(d.Asks),
			Avatar:    util.AvatarURL(name),
		})
	}
	c.log.Debug("roster cleaned", zap.Int("input_chars", len(raw)), zap.Int("members", len(out)))
	return out, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
