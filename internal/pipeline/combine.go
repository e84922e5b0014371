package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/castmind/castmind/internal/persona"
)

const (
	combineStageName = "combine"

	contributionExcerptRunes = 50
	citationExcerptRunes     = 100
)

// CombineStage deterministically renders every present contribution into
// one human-readable artifact. It never calls the gateway.
type CombineStage struct {
	roster []persona.Descriptor
}

func NewCombineStage(roster []persona.Descriptor) *CombineStage {
	return &CombineStage{roster: roster}
}

func (c *CombineStage) Name() string {
	return combineStageName
}

func (c *CombineStage) Run(_ context.Context, snapshot State) (Delta, error) {
	combined := Combine(c.roster, snapshot)
	return Delta{Stage: combineStageName, Combined: &combined}, nil
}

// Combine merges contributions in roster order. Zero contributions is
// legal and yields a header with empty sections.
func Combine(roster []persona.Descriptor, snapshot State) CombinedResult {
	var b strings.Builder
	b.WriteString("Collaborative Response:\n\n")

	allCitations := make([]Citation, 0)
	summaries := make([]ContributionSummary, 0, len(roster))

	for _, desc := range roster {
		contribution, ok := snapshot.Contributions[desc.Slug]
		if !ok {
			continue
		}

		b.WriteString("**" + desc.DisplayName + "**: " + contribution.Response + "\n\n")
		allCitations = append(allCitations, contribution.Citations...)
		summaries = append(summaries, ContributionSummary{
			Agent:        desc.Slug,
			Contribution: contribution.Response,
			Style:        contribution.Style.Name,
		})
	}

	memory := snapshot.SharedMemory
	if len(memory) > 0 {
		b.WriteString("\n---\nShared Memory:\n")
		for _, key := range sortedMemoryKeys(memory) {
			entry := memory[key]
			b.WriteString("- " + key + ": " + entry.Content + " (by " + entry.Agent + ")\n")
		}
	}

	b.WriteString("\n---\nCollaboration Insights:\n")
	for _, summary := range summaries {
		b.WriteString("- " + displayName(roster, summary.Agent) +
			" (" + summary.Style + "): Provided " + truncateRunes(summary.Contribution, contributionExcerptRunes) + "...\n")
	}

	b.WriteString("\n---\nCitations:\n")
	for _, citation := range allCitations {
		b.WriteString("- " + citation.Agent + ": " + truncateRunes(citation.Context, citationExcerptRunes) + "...\n")
	}

	snapshotMemory := make(map[string]MemoryEntry, len(memory))
	for k, v := range memory {
		snapshotMemory[k] = v
	}

	return CombinedResult{
		FinalResponse:        b.String(),
		AllCitations:         allCitations,
		CollaborationSummary: summaries,
		SharedMemory:         snapshotMemory,
	}
}

func sortedMemoryKeys(memory map[string]MemoryEntry) []string {
	keys := make([]string, 0, len(memory))
	for k := range memory {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func displayName(roster []persona.Descriptor, slug string) string {
	for _, desc := range roster {
		if desc.Slug == slug {
			return desc.DisplayName
		}
	}
	return slug
}

func truncateRunes(input string, max int) string {
	runes := []rune(input)
	if len(runes) <= max {
		return input
	}
	return string(runes[:max])
}
