package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/castmind/castmind/internal/gateway"
	"github.com/castmind/castmind/internal/knowledge"
	"github.com/castmind/castmind/internal/persona"
	"github.com/castmind/castmind/internal/pipeline"
)

const sampleCorpus = `char1_name,line1_text,movie_title
BIANCA,"They do not! A good dialogue has rhythm.",10 things i hate about you
CAMERON,"They do to!",10 things i hate about you
JOEY,"Let me tell you a long story about the old days of cinema and the people who made it special.",10 things i hate about you
`

func testRoster(t *testing.T) []persona.Descriptor {
	t.Helper()
	return persona.DefaultRoster(t.TempDir())
}

func buildOrchestrator(t *testing.T, gw gateway.Client, corpusCSV string) (*pipeline.Orchestrator, []persona.Descriptor) {
	t.Helper()

	roster := testRoster(t)
	stages := make([]pipeline.Stage, 0, len(roster)+2)
	for _, desc := range roster {
		corpus, err := knowledge.Read(strings.NewReader(corpusCSV))
		if err != nil {
			t.Fatalf("failed to build corpus: %v", err)
		}
		stages = append(stages, pipeline.NewPersonaStage(desc, roster, corpus, gw, nil))
	}
	stages = append(stages,
		pipeline.NewCombineStage(roster),
		pipeline.NewModeratorStage(roster, gw, nil),
	)

	return pipeline.New(stages, nil), roster
}

// failingGateway fails the nth Generate call and echoes like the mock
// otherwise. Stages run strictly sequentially, so call order is fixed.
type failingGateway struct {
	mu      sync.Mutex
	calls   int
	failOn  int
	failErr error
}

func (f *failingGateway) Generate(ctx context.Context, messages []gateway.Message) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if call == f.failOn {
		return "", f.failErr
	}
	return gateway.Mock{}.Generate(ctx, messages)
}

func TestInvokeProducesEveryStageResult(t *testing.T) {
	orchestrator, roster := buildOrchestrator(t, gateway.Mock{}, sampleCorpus)

	final, err := orchestrator.Invoke(context.Background(), pipeline.NewState("What makes a good movie dialogue?"))
	if err != nil {
		t.Fatalf("invoke returned error: %v", err)
	}

	if len(final.Contributions) != len(roster) {
		t.Fatalf("expected %d contributions, got %d", len(roster), len(final.Contributions))
	}
	for _, desc := range roster {
		contribution, ok := final.Contributions[desc.Slug]
		if !ok {
			t.Fatalf("missing contribution for %s", desc.Slug)
		}
		want := "[MOCK] What makes a good movie dialogue?"
		if !strings.HasPrefix(contribution.Response, want) {
			t.Fatalf("persona %s response %q does not start with %q", desc.Slug, contribution.Response, want)
		}
	}

	if final.Combined == nil {
		t.Fatal("expected combined result")
	}
	for _, desc := range roster {
		if !strings.Contains(final.Combined.FinalResponse, desc.DisplayName) {
			t.Fatalf("combined response missing display name %s", desc.DisplayName)
		}
	}

	if final.Moderator == nil {
		t.Fatal("expected moderator result")
	}
	if !strings.HasPrefix(final.Moderator.Summary, "[MOCK] ") {
		t.Fatalf("moderator summary %q is not the mock echo", final.Moderator.Summary)
	}
	if len(final.Moderator.AgentsReviewed) != len(roster) {
		t.Fatalf("expected %d reviewed agents, got %d", len(roster), len(final.Moderator.AgentsReviewed))
	}
}

func TestQuestionRosterInvariant(t *testing.T) {
	orchestrator, roster := buildOrchestrator(t, gateway.Mock{}, sampleCorpus)

	final, err := orchestrator.Invoke(context.Background(), pipeline.NewState("What makes a good movie dialogue?"))
	if err != nil {
		t.Fatalf("invoke returned error: %v", err)
	}

	for _, desc := range roster {
		questions := final.Contributions[desc.Slug].QuestionsForOthers
		if len(questions) != len(roster)-1 {
			t.Fatalf("persona %s has %d questions, want %d", desc.Slug, len(questions), len(roster)-1)
		}
		if _, ok := questions[desc.Slug]; ok {
			t.Fatalf("persona %s asked itself a question", desc.Slug)
		}
	}
}

func TestSharedMemoryMonotonicity(t *testing.T) {
	orchestrator, roster := buildOrchestrator(t, gateway.Mock{}, sampleCorpus)

	final, err := orchestrator.Invoke(context.Background(), pipeline.NewState("rhythm"))
	if err != nil {
		t.Fatalf("invoke returned error: %v", err)
	}

	for _, desc := range roster {
		key := desc.Slug + "_insight"
		entry, ok := final.SharedMemory[key]
		if !ok {
			t.Fatalf("shared memory missing key %s", key)
		}
		if entry.Agent != desc.DisplayName {
			t.Fatalf("memory entry %s attributed to %q, want %q", key, entry.Agent, desc.DisplayName)
		}
		if _, ok := final.Combined.SharedMemory[key]; !ok {
			t.Fatalf("combine stage lost memory key %s", key)
		}
	}
}

func TestEmptyQueryCompletes(t *testing.T) {
	orchestrator, roster := buildOrchestrator(t, gateway.Mock{}, sampleCorpus)

	final, err := orchestrator.Invoke(context.Background(), pipeline.NewState(""))
	if err != nil {
		t.Fatalf("empty query should not fail the run: %v", err)
	}

	for _, desc := range roster {
		contribution, ok := final.Contributions[desc.Slug]
		if !ok {
			t.Fatalf("missing contribution for %s", desc.Slug)
		}
		if contribution.Citations == nil {
			t.Fatalf("persona %s citations must be an empty list, not nil", desc.Slug)
		}
	}
}

func TestEmptyCorpusYieldsNoCitations(t *testing.T) {
	orchestrator, roster := buildOrchestrator(t, gateway.Mock{}, "char1_name,line1_text,movie_title\n")

	final, err := orchestrator.Invoke(context.Background(), pipeline.NewState("anything at all"))
	if err != nil {
		t.Fatalf("invoke returned error: %v", err)
	}

	for _, desc := range roster {
		citations := final.Contributions[desc.Slug].Citations
		if len(citations) != 0 {
			t.Fatalf("persona %s should have zero citations with empty corpus, got %d", desc.Slug, len(citations))
		}
	}
}

func TestRandomFallbackStillCites(t *testing.T) {
	orchestrator, roster := buildOrchestrator(t, gateway.Mock{}, sampleCorpus)

	// no token of this query appears in the sample corpus
	final, err := orchestrator.Invoke(context.Background(), pipeline.NewState("zzzzqqqq"))
	if err != nil {
		t.Fatalf("invoke returned error: %v", err)
	}

	for _, desc := range roster {
		citations := final.Contributions[desc.Slug].Citations
		if len(citations) == 0 {
			t.Fatalf("persona %s should cite random-sample fallback entries", desc.Slug)
		}
		for _, citation := range citations {
			if strings.TrimSpace(citation.Context) == "" {
				t.Fatalf("persona %s emitted a citation with empty context", desc.Slug)
			}
		}
	}
}

func TestGatewayFailureAbortsWholeRun(t *testing.T) {
	wantErr := &gateway.Error{StatusCode: 429, Message: "rate limited"}
	// call order: p1 main, p1 q, p1 q, p2 main (4th call)
	gw := &failingGateway{failOn: 4, failErr: wantErr}
	orchestrator, _ := buildOrchestrator(t, gw, sampleCorpus)

	final, err := orchestrator.Invoke(context.Background(), pipeline.NewState("What makes a good movie dialogue?"))
	if err == nil {
		t.Fatal("expected run-level error when a persona's main response fails")
	}

	var gatewayErr *gateway.Error
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("error %v should wrap a gateway error", err)
	}

	// abort policy: the whole run fails and no partial state comes back
	if len(final.Contributions) != 0 {
		t.Fatalf("aborted run leaked %d contributions", len(final.Contributions))
	}
	if final.Combined != nil || final.Moderator != nil {
		t.Fatal("aborted run leaked combine or moderator results")
	}
}

func TestQuestionFailureDoesNotAbortMainResponse(t *testing.T) {
	wantErr := &gateway.Error{StatusCode: 500, Message: "boom"}
	// 2nd call is the first persona's first question generation
	gw := &failingGateway{failOn: 2, failErr: wantErr}
	orchestrator, roster := buildOrchestrator(t, gw, sampleCorpus)

	final, err := orchestrator.Invoke(context.Background(), pipeline.NewState("What makes a good movie dialogue?"))
	if err != nil {
		t.Fatalf("question failure must not abort the run: %v", err)
	}

	first := final.Contributions[roster[0].Slug]
	if !strings.HasPrefix(first.Response, "[MOCK] ") {
		t.Fatalf("main response should survive question failure, got %q", first.Response)
	}

	if len(first.QuestionsForOthers) != len(roster)-1 {
		t.Fatalf("question slots must be preserved, got %d", len(first.QuestionsForOthers))
	}

	var placeholders int
	for _, question := range first.QuestionsForOthers {
		if strings.HasPrefix(question, "[question unavailable:") {
			placeholders++
		}
	}
	if placeholders != 1 {
		t.Fatalf("expected exactly one placeholder question, got %d", placeholders)
	}
}

func TestCombineOnEmptyState(t *testing.T) {
	roster := testRoster(t)

	combined := pipeline.Combine(roster, pipeline.NewState("anything"))

	if !strings.HasPrefix(combined.FinalResponse, "Collaborative Response:") {
		t.Fatalf("combined text missing header: %q", combined.FinalResponse)
	}
	if len(combined.AllCitations) != 0 {
		t.Fatalf("expected no citations, got %d", len(combined.AllCitations))
	}
	if len(combined.CollaborationSummary) != 0 {
		t.Fatalf("expected no summaries, got %d", len(combined.CollaborationSummary))
	}
}

func TestCombineTruncatesExcerpts(t *testing.T) {
	roster := testRoster(t)
	state := pipeline.NewState("topic")
	long := strings.Repeat("a", 200)
	state.Contributions[roster[0].Slug] = pipeline.Contribution{
		Agent:    roster[0].DisplayName,
		Response: long,
		Citations: []pipeline.Citation{{
			Agent:   roster[0].DisplayName,
			Context: long,
		}},
		Style: roster[0].Style,
	}

	combined := pipeline.Combine(roster, state)

	if !strings.Contains(combined.FinalResponse, "Provided "+strings.Repeat("a", 50)+"...") {
		t.Fatal("contribution excerpt not truncated to 50 runes")
	}
	if !strings.Contains(combined.FinalResponse, ": "+strings.Repeat("a", 100)+"...") {
		t.Fatal("citation excerpt not truncated to 100 runes")
	}
}

func TestModeratorToleratesMissingContributions(t *testing.T) {
	roster := testRoster(t)
	stage := pipeline.NewModeratorStage(roster, gateway.Mock{}, nil)

	state := pipeline.NewState("topic")
	state.Contributions[roster[0].Slug] = pipeline.Contribution{
		Agent:    roster[0].DisplayName,
		Response: "only one persona ran",
		Style:    roster[0].Style,
	}

	delta, err := stage.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("moderator must tolerate missing contributions: %v", err)
	}
	if delta.Moderator == nil {
		t.Fatal("expected moderator result")
	}
	if len(delta.Moderator.AgentsReviewed) != 1 {
		t.Fatalf("expected 1 reviewed agent, got %d", len(delta.Moderator.AgentsReviewed))
	}
}

func TestLaterPersonasSeeEarlierResponses(t *testing.T) {
	// capture every prompt to verify the second persona's collaboration
	// context carries the first persona's response from this run
	var (
		mu      sync.Mutex
		prompts [][]gateway.Message
	)
	capture := gatewayFunc(func(ctx context.Context, messages []gateway.Message) (string, error) {
		mu.Lock()
		prompts = append(prompts, append([]gateway.Message(nil), messages...))
		mu.Unlock()
		return gateway.Mock{}.Generate(ctx, messages)
	})

	orchestrator, roster := buildOrchestrator(t, capture, sampleCorpus)
	if _, err := orchestrator.Invoke(context.Background(), pipeline.NewState("What makes a good movie dialogue?")); err != nil {
		t.Fatalf("invoke returned error: %v", err)
	}

	// the 4th call is the second persona's main response
	secondMain := prompts[3]
	var sawFirst bool
	for _, msg := range secondMain {
		if strings.Contains(msg.Content, roster[0].DisplayName+": [MOCK]") {
			sawFirst = true
		}
	}
	if !sawFirst {
		t.Fatal("second persona's prompt should include the first persona's response from this run")
	}
}

type gatewayFunc func(ctx context.Context, messages []gateway.Message) (string, error)

func (f gatewayFunc) Generate(ctx context.Context, messages []gateway.Message) (string, error) {
	return f(ctx, messages)
}

func TestSnapshotIsolation(t *testing.T) {
	initial := pipeline.NewState("query")
	initial.SharedMemory["seed"] = pipeline.MemoryEntry{Agent: "tester", Content: "before"}

	clone := initial.Clone()
	clone.SharedMemory["seed"] = pipeline.MemoryEntry{Agent: "tester", Content: "after"}
	clone.Contributions["x"] = pipeline.Contribution{Agent: "x"}

	if initial.SharedMemory["seed"].Content != "before" {
		t.Fatal("clone mutation leaked into the original shared memory")
	}
	if len(initial.Contributions) != 0 {
		t.Fatal("clone mutation leaked into the original contributions")
	}
}
