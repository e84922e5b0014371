package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/castmind/castmind/internal/gateway"
	"github.com/castmind/castmind/internal/knowledge"
	"github.com/castmind/castmind/internal/persona"
)

const (
	maxKnowledgeExamples = 3
	maxCollabContext     = 3
	maxHistoryContext    = 5

	citationSource = "movie_dialogues"

	// memoryKeySuffix forms the shared-memory key each persona writes.
	memoryKeySuffix = "_insight"
)

// PersonaStage runs one persona's turn: knowledge lookup, main response,
// and one proposed question per other roster member.
type PersonaStage struct {
	desc   persona.Descriptor
	roster []persona.Descriptor
	corpus *knowledge.Corpus
	gw     gateway.Client
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewPersonaStage wires a persona descriptor to its corpus and the
// gateway. The roster is the full persona list; the stage derives the
// "others" to question from it.
func NewPersonaStage(desc persona.Descriptor, roster []persona.Descriptor, corpus *knowledge.Corpus, gw gateway.Client, logger *zap.SugaredLogger) *PersonaStage {
	if corpus == nil {
		corpus = &knowledge.Corpus{}
	}
	return &PersonaStage{
		desc:   desc,
		roster: roster,
		corpus: corpus,
		gw:     gw,
		logger: logger,
		now:    time.Now,
	}
}

func (p *PersonaStage) Name() string {
	return p.desc.Slug
}

// Descriptor returns the persona this stage embodies.
func (p *PersonaStage) Descriptor() persona.Descriptor {
	return p.desc
}

// Run produces this persona's contribution and its shared-memory write.
// A failed main-response gateway call aborts the stage with a
// distinguishable error; failed question-generation calls degrade to a
// placeholder in that slot so the main response survives.
func (p *PersonaStage) Run(ctx context.Context, snapshot State) (Delta, error) {
	entries, _ := p.corpus.Relevant(snapshot.UserQuery, maxKnowledgeExamples)
	knowledgeBlock := knowledge.RenderBlock(entries)

	messages := p.buildPrompt(snapshot, knowledgeBlock)

	response, err := p.gw.Generate(ctx, messages)
	if err != nil {
		return Delta{}, fmt.Errorf("persona %s response: %w", p.desc.Slug, err)
	}

	questions := p.questionOthers(ctx, snapshot.UserQuery)

	citations := make([]Citation, 0, len(entries))
	for _, entry := range entries {
		citations = append(citations, Citation{
			Source:  citationSource,
			Persona: p.desc.DisplayName,
			Context: entry.Format(),
			Agent:   p.desc.DisplayName,
		})
	}

	contribution := Contribution{
		Agent:              p.desc.DisplayName,
		Response:           response,
		Citations:          citations,
		PersonaID:          p.desc.ID,
		QuestionsForOthers: questions,
		Style:              p.desc.Style,
	}

	return Delta{
		Stage:        p.desc.Slug,
		Contribution: &contribution,
		MemoryWrites: map[string]MemoryEntry{
			p.desc.Slug + memoryKeySuffix: {
				Agent:     p.desc.DisplayName,
				Content:   response,
				Timestamp: p.now().UTC(),
			},
		},
	}, nil
}

// buildPrompt assembles the ordered message sequence: voice prompt,
// retrieved knowledge, recent collaboration turns, recent history, then
// the user query as the final turn.
func (p *PersonaStage) buildPrompt(snapshot State, knowledgeBlock string) []gateway.Message {
	messages := []gateway.Message{
		{Role: gateway.RoleSystem, Content: p.desc.VoicePrompt},
		{Role: gateway.RoleSystem, Content: "Relevant dialogue examples from your knowledge base:\n" + knowledgeBlock},
	}

	if turns := lastTurns(snapshot.CollaborationHistory, maxCollabContext); len(turns) > 0 {
		lines := make([]string, 0, len(turns))
		for _, turn := range turns {
			lines = append(lines, turn.Agent+": "+turn.Response)
		}
		messages = append(messages, gateway.Message{
			Role:    gateway.RoleSystem,
			Content: "Recent collaboration context:\n" + strings.Join(lines, "\n"),
		})
	}

	history := snapshot.Messages
	if len(history) > maxHistoryContext {
		history = history[len(history)-maxHistoryContext:]
	}
	for _, msg := range history {
		switch msg.Role {
		case gateway.RoleAssistant:
			messages = append(messages, gateway.Message{Role: gateway.RoleAssistant, Content: msg.Content})
		case gateway.RoleUser, "":
			messages = append(messages, gateway.Message{Role: gateway.RoleUser, Content: msg.Content})
		}
	}

	if strings.TrimSpace(snapshot.UserQuery) != "" {
		messages = append(messages, gateway.Message{Role: gateway.RoleUser, Content: snapshot.UserQuery})
	}

	return messages
}

// questionOthers generates one question per other roster member. The
// map always carries exactly one slot per other persona; a failed call
// fills its slot with a placeholder instead of dropping it.
func (p *PersonaStage) questionOthers(ctx context.Context, topic string) map[string]string {
	questions := make(map[string]string, len(p.roster)-1)
	for _, other := range p.roster {
		if other.Slug == p.desc.Slug {
			continue
		}

		prompt := []gateway.Message{
			{Role: gateway.RoleSystem, Content: p.desc.VoicePrompt},
			{Role: gateway.RoleUser, Content: p.desc.QuestionPrompt(other.DisplayName, topic)},
		}

		question, err := p.gw.Generate(ctx, prompt)
		if err != nil {
			if p.logger != nil {
				p.logger.Warnw("question generation failed",
					"persona", p.desc.Slug, "target", other.Slug, "error", err)
			}
			question = fmt.Sprintf("[question unavailable: %v]", err)
		}
		questions[other.Slug] = question
	}

	return questions
}

func lastTurns(turns []CollabTurn, n int) []CollabTurn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
