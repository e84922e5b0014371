package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/castmind/castmind/internal/gateway"
	"github.com/castmind/castmind/internal/persona"
)

const moderatorStageName = "moderator"

const moderatorPrompt = "You are the Moderator. Your job is to review all agent responses and the shared memory, " +
	"summarize the main points, highlight consensus or disagreement, and resolve conflicts if any. " +
	"Cite memory and agent contributions as needed."

// ModeratorStage synthesizes the finished run with one gateway call. A
// persona that never ran is simply absent from the rendered block; it is
// never a fatal condition here.
type ModeratorStage struct {
	roster []persona.Descriptor
	gw     gateway.Client
	logger *zap.SugaredLogger
}

func NewModeratorStage(roster []persona.Descriptor, gw gateway.Client, logger *zap.SugaredLogger) *ModeratorStage {
	return &ModeratorStage{roster: roster, gw: gw, logger: logger}
}

func (m *ModeratorStage) Name() string {
	return moderatorStageName
}

func (m *ModeratorStage) Run(ctx context.Context, snapshot State) (Delta, error) {
	agentSummaries := make([]string, 0, len(m.roster))
	for _, desc := range m.roster {
		contribution, ok := snapshot.Contributions[desc.Slug]
		if !ok {
			continue
		}
		agentSummaries = append(agentSummaries, contribution.Agent+": "+contribution.Response)
	}

	memoryLines := make([]string, 0, len(snapshot.SharedMemory))
	for _, key := range sortedMemoryKeys(snapshot.SharedMemory) {
		entry := snapshot.SharedMemory[key]
		memoryLines = append(memoryLines, key+": "+entry.Content+" (by "+entry.Agent+")")
	}

	messages := []gateway.Message{
		{Role: gateway.RoleSystem, Content: moderatorPrompt},
		{Role: gateway.RoleSystem, Content: "Agent responses:\n" + strings.Join(agentSummaries, "\n")},
		{Role: gateway.RoleSystem, Content: "Shared memory:\n" + strings.Join(memoryLines, "\n")},
	}

	summary, err := m.gw.Generate(ctx, messages)
	if err != nil {
		return Delta{}, fmt.Errorf("moderator summary: %w", err)
	}

	memoryUsed := make(map[string]MemoryEntry, len(snapshot.SharedMemory))
	for k, v := range snapshot.SharedMemory {
		memoryUsed[k] = v
	}

	return Delta{
		Stage: moderatorStageName,
		Moderator: &ModeratorResult{
			Summary:        summary,
			MemoryUsed:     memoryUsed,
			AgentsReviewed: agentSummaries,
		},
	}, nil
}
