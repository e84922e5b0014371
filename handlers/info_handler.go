package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/castmind/castmind/internal/persona"
)

const serviceVersion = "2.0.0"

// InfoHandler serves the static descriptive endpoints: roster, canned
// collaboration scenarios, and collaboration pattern stats.
type InfoHandler struct {
	roster []persona.Descriptor
	stages []string
}

func NewInfoHandler(roster []persona.Descriptor, stages []string) *InfoHandler {
	return &InfoHandler{roster: roster, stages: stages}
}

type agentInfo struct {
	Name        string        `json:"name"`
	Persona     string        `json:"persona"`
	Description string        `json:"description"`
	Style       persona.Style `json:"collaboration_style"`
	Strengths   []string      `json:"strengths"`
}

func (h *InfoHandler) HandleAgents(c *gin.Context) {
	agents := make([]agentInfo, 0, len(h.roster))
	for _, desc := range h.roster {
		agents = append(agents, agentInfo{
			Name:        desc.DisplayName,
			Persona:     desc.Slug,
			Description: desc.Style.Approach,
			Style:       desc.Style,
			Strengths:   desc.Style.Strengths,
		})
	}

	c.JSON(http.StatusOK, agents)
}

type collaborationScenario struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	Query                 string `json:"query"`
	ExpectedCollaboration string `json:"expected_collaboration"`
}

func (h *InfoHandler) HandleScenarios(c *gin.Context) {
	c.JSON(http.StatusOK, []collaborationScenario{
		{
			Name:                  "Dialogue Analysis",
			Description:           "Analyze what makes movie dialogues effective",
			Query:                 "What makes a good movie dialogue?",
			ExpectedCollaboration: "Analyst will ask probing questions, Responder will provide quick insights, Storyteller will share detailed examples",
		},
		{
			Name:                  "Emotional Expression",
			Description:           "Understand how characters express emotions in movies",
			Query:                 "How do characters express emotions in movies?",
			ExpectedCollaboration: "Analyst will analyze patterns, Responder will highlight key moments, Storyteller will provide rich context",
		},
		{
			Name:                  "Conversation Patterns",
			Description:           "Identify recurring dialogue structures",
			Query:                 "What are some common conversation patterns in films?",
			ExpectedCollaboration: "Analyst will map structures, Responder will identify turning points, Storyteller will explain narrative arcs",
		},
		{
			Name:                  "Character Development",
			Description:           "Explore how characters evolve through dialogue",
			Query:                 "How do movie characters develop through their conversations?",
			ExpectedCollaboration: "Analyst will track development patterns, Responder will note key changes, Storyteller will weave character stories",
		},
	})
}

func (h *InfoHandler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"collaboration_patterns": gin.H{
			"analytical_lead":     "Analyst initiates with questions",
			"reactive_support":    "Responder provides quick feedback",
			"narrative_synthesis": "Storyteller weaves perspectives together",
		},
		"agent_interactions": gin.H{
			"analyst_questions":         "High frequency of questions to other agents",
			"responder_acknowledgments": "Quick acknowledgments and clarifications",
			"storyteller_connections":   "Rich narrative connections between perspectives",
		},
	})
}

func (h *InfoHandler) HandleHealth(c *gin.Context) {
	slugs := make([]string, 0, len(h.roster))
	for _, desc := range h.roster {
		slugs = append(slugs, desc.Slug)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"agents":    slugs,
		"stages":    h.stages,
		"version":   serviceVersion,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
