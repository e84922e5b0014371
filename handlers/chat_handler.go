package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/castmind/castmind/internal/memory"
	"github.com/castmind/castmind/internal/persona"
	"github.com/castmind/castmind/internal/pipeline"
	"github.com/castmind/castmind/internal/store"
)

// collabHistoryWindow is how many prior collaboration turns a new run
// receives from the cross-run store.
const collabHistoryWindow = 3

// ChatHandler runs the collaboration pipeline for REST clients.
type ChatHandler struct {
	orchestrator *pipeline.Orchestrator
	roster       []persona.Descriptor
	history      memory.Store
	transcripts  *store.Mongo
	logger       *zap.SugaredLogger
}

func NewChatHandler(orchestrator *pipeline.Orchestrator, roster []persona.Descriptor, history memory.Store, transcripts *store.Mongo, logger *zap.SugaredLogger) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		roster:       roster,
		history:      history,
		transcripts:  transcripts,
		logger:       logger,
	}
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type flowEntry struct {
	Agent     string `json:"agent"`
	Response  string `json:"response"`
	Style     string `json:"style"`
	Timestamp string `json:"timestamp"`
}

type chatResponse struct {
	Response             string                          `json:"response"`
	AgentResponses       map[string]string               `json:"agent_responses"`
	Citations            []pipeline.Citation             `json:"citations"`
	ConversationID       string                          `json:"conversation_id"`
	CollaborationSummary []pipeline.ContributionSummary  `json:"collaboration_summary"`
	AgentQuestions       map[string]map[string]string    `json:"agent_questions"`
	CollaborationFlow    []flowEntry                     `json:"collaboration_flow"`
	SharedMemory         map[string]pipeline.MemoryEntry `json:"shared_memory"`
	Moderator            *pipeline.ModeratorResult       `json:"moderator,omitempty"`
	Error                string                          `json:"error,omitempty"`
}

// HandleChat is POST /api/chat. A pipeline failure still answers 200 with
// the error field set and every collection empty but well typed, so
// browser clients never have to guess at missing keys.
func (h *ChatHandler) HandleChat(c *gin.Context) {
	var payload chatRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
		return
	}

	if strings.TrimSpace(payload.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message cannot be empty"})
		return
	}

	conversationID := strings.TrimSpace(payload.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	ctx := c.Request.Context()
	initial := h.prepareState(ctx, payload.Message, conversationID)

	final, err := h.orchestrator.Invoke(ctx, initial)
	if err != nil {
		h.logger.Errorw("pipeline run failed", "conversation_id", conversationID, "error", err)
		c.JSON(http.StatusOK, emptyChatResponse(conversationID,
			"Agent system failed to process the request. Please try again later."))
		return
	}

	h.persistRun(ctx, conversationID, payload.Message, final)

	c.JSON(http.StatusOK, buildChatResponse(h.roster, final, conversationID))
}

// prepareState seeds a fresh run state with cross-run collaboration
// history and recent transcript turns when the stores are wired.
func (h *ChatHandler) prepareState(ctx context.Context, message, conversationID string) pipeline.State {
	state := pipeline.NewState(message)
	state.ConversationID = conversationID

	if h.history != nil {
		turns, err := h.history.Recent(ctx, conversationID, collabHistoryWindow)
		if err != nil {
			h.logger.Warnw("collaboration history unavailable", "conversation_id", conversationID, "error", err)
		} else {
			state.CollaborationHistory = turns
		}
	}

	if h.transcripts != nil {
		messages, err := h.transcripts.RecentMessages(ctx, conversationID, 2)
		if err != nil {
			h.logger.Warnw("transcript history unavailable", "conversation_id", conversationID, "error", err)
		} else {
			state.Messages = messages
		}
	}

	return state
}

// persistRun records the finished run in the cross-run history store and
// the transcript archive. Both are best-effort: a storage failure never
// fails the request that already completed.
func (h *ChatHandler) persistRun(ctx context.Context, conversationID, query string, final pipeline.State) {
	if h.history != nil {
		turns := make([]pipeline.CollabTurn, 0, len(h.roster))
		for _, desc := range h.roster {
			if contribution, ok := final.Contributions[desc.Slug]; ok {
				turns = append(turns, pipeline.CollabTurn{Agent: contribution.Agent, Response: contribution.Response})
			}
		}
		if err := h.history.Append(ctx, conversationID, turns); err != nil {
			h.logger.Warnw("failed to persist collaboration history", "conversation_id", conversationID, "error", err)
		}
	}

	if h.transcripts != nil {
		transcript := store.Transcript{
			ConversationID: conversationID,
			Query:          query,
			AgentResponses: make(map[string]string, len(h.roster)),
			CreatedAt:      time.Now().UTC(),
		}
		if final.Combined != nil {
			transcript.FinalResponse = final.Combined.FinalResponse
		}
		if final.Moderator != nil {
			transcript.Summary = final.Moderator.Summary
		}
		for _, desc := range h.roster {
			if contribution, ok := final.Contributions[desc.Slug]; ok {
				transcript.AgentResponses[desc.Slug] = contribution.Response
			}
		}
		if err := h.transcripts.SaveTranscript(ctx, transcript); err != nil {
			h.logger.Warnw("failed to archive transcript", "conversation_id", conversationID, "error", err)
		}
	}
}

func buildChatResponse(roster []persona.Descriptor, final pipeline.State, conversationID string) chatResponse {
	resp := emptyChatResponse(conversationID, "")

	now := time.Now().UTC().Format(time.RFC3339)
	for _, desc := range roster {
		contribution, ok := final.Contributions[desc.Slug]
		if !ok {
			continue
		}
		resp.AgentResponses[desc.Slug] = contribution.Response
		resp.AgentQuestions[desc.Slug] = contribution.QuestionsForOthers
		resp.Citations = append(resp.Citations, contribution.Citations...)
		resp.CollaborationFlow = append(resp.CollaborationFlow, flowEntry{
			Agent:     desc.Slug,
			Response:  contribution.Response,
			Style:     contribution.Style.Name,
			Timestamp: now,
		})
	}

	if final.Combined != nil {
		resp.Response = final.Combined.FinalResponse
		resp.CollaborationSummary = final.Combined.CollaborationSummary
		resp.SharedMemory = final.Combined.SharedMemory
	}
	resp.Moderator = final.Moderator

	return resp
}

func emptyChatResponse(conversationID, errMessage string) chatResponse {
	return chatResponse{
		AgentResponses:       make(map[string]string),
		Citations:            make([]pipeline.Citation, 0),
		ConversationID:       conversationID,
		CollaborationSummary: make([]pipeline.ContributionSummary, 0),
		AgentQuestions:       make(map[string]map[string]string),
		CollaborationFlow:    make([]flowEntry, 0),
		SharedMemory:         make(map[string]pipeline.MemoryEntry),
		Error:                errMessage,
	}
}
