// Package pipeline implements the collaboration pipeline: a fixed linear
// sequence of persona stages followed by a combine step and a moderator.
// Stages receive an immutable snapshot of the conversation state and
// return a partial update; the orchestrator owns the single mutable
// accumulator and applies each delta before invoking the next stage.
package pipeline

import (
	"time"

	"github.com/castmind/castmind/internal/persona"
)

// Message is one prior conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CollabTurn is one entry of cross-turn collaboration memory.
type CollabTurn struct {
	Agent    string `json:"agent"`
	Response string `json:"response"`
}

// MemoryEntry is one attributed record in the shared-memory scratchpad.
type MemoryEntry struct {
	Agent     string    `json:"agent"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Citation is a provenance pointer into a persona's reference corpus. It
// is opaque: nothing downstream validates it.
type Citation struct {
	Source  string `json:"source"`
	Persona string `json:"persona"`
	Context string `json:"context"`
	Agent   string `json:"agent"`
}

// Contribution is the structured output of one persona stage for one run.
type Contribution struct {
	Agent              string            `json:"agent"`
	Response           string            `json:"response"`
	Citations          []Citation        `json:"citations"`
	PersonaID          int               `json:"persona_id"`
	QuestionsForOthers map[string]string `json:"questions_for_others"`
	Style              persona.Style     `json:"collaboration_style"`
}

// ContributionSummary is the one-line view of a contribution used by the
// combine stage.
type ContributionSummary struct {
	Agent        string `json:"agent"`
	Contribution string `json:"contribution"`
	Style        string `json:"style"`
}

// CombinedResult is the deterministic merge of every contribution.
type CombinedResult struct {
	FinalResponse        string                 `json:"final_response"`
	AllCitations         []Citation             `json:"all_citations"`
	CollaborationSummary []ContributionSummary  `json:"collaboration_summary"`
	SharedMemory         map[string]MemoryEntry `json:"shared_memory"`
}

// ModeratorResult is the moderator's synthesis of a finished run.
type ModeratorResult struct {
	Summary        string                 `json:"summary"`
	MemoryUsed     map[string]MemoryEntry `json:"memory_used"`
	AgentsReviewed []string               `json:"agents_reviewed"`
}

// State is the single record threaded through one pipeline run. It is
// created fresh per request and discarded once the response is returned.
type State struct {
	ConversationID       string
	UserQuery            string
	Messages             []Message
	CollaborationHistory []CollabTurn
	SharedMemory         map[string]MemoryEntry
	Contributions        map[string]Contribution
	Combined             *CombinedResult
	Moderator            *ModeratorResult
}

// NewState builds an empty run state for the given query.
func NewState(query string) State {
	return State{
		UserQuery:     query,
		SharedMemory:  make(map[string]MemoryEntry),
		Contributions: make(map[string]Contribution),
	}
}

// Clone deep-copies the state so a stage can never mutate the
// orchestrator's accumulator through shared maps or slices.
func (s State) Clone() State {
	out := s

	out.Messages = append([]Message(nil), s.Messages...)
	out.CollaborationHistory = append([]CollabTurn(nil), s.CollaborationHistory...)

	out.SharedMemory = make(map[string]MemoryEntry, len(s.SharedMemory))
	for k, v := range s.SharedMemory {
		out.SharedMemory[k] = v
	}

	out.Contributions = make(map[string]Contribution, len(s.Contributions))
	for k, v := range s.Contributions {
		out.Contributions[k] = v.clone()
	}

	return out
}

func (c Contribution) clone() Contribution {
	out := c
	out.Citations = append([]Citation(nil), c.Citations...)
	out.QuestionsForOthers = make(map[string]string, len(c.QuestionsForOthers))
	for k, v := range c.QuestionsForOthers {
		out.QuestionsForOthers[k] = v
	}
	return out
}

// Delta is the partial update a stage returns. Nil fields are untouched.
type Delta struct {
	Stage        string
	Contribution *Contribution
	MemoryWrites map[string]MemoryEntry
	Combined     *CombinedResult
	Moderator    *ModeratorResult
}

// apply merges a delta into the running state. Shared memory accumulates
// append-only within a run; a stage's contribution entry is written once
// and never touched again.
func (s *State) apply(d Delta) {
	if d.Contribution != nil {
		s.Contributions[d.Stage] = *d.Contribution
	}
	for k, v := range d.MemoryWrites {
		s.SharedMemory[k] = v
	}
	if d.Combined != nil {
		s.Combined = d.Combined
	}
	if d.Moderator != nil {
		s.Moderator = d.Moderator
	}
}
