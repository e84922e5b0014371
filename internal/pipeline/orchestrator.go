package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/castmind/castmind/internal/gateway"
	"github.com/castmind/castmind/internal/knowledge"
	"github.com/castmind/castmind/internal/persona"
)

// Stage is one step of the pipeline. Run receives a snapshot it may not
// mutate and returns a partial update.
type Stage interface {
	Name() string
	Run(ctx context.Context, snapshot State) (Delta, error)
}

// StageStatus tracks a stage's progress for streaming observers.
type StageStatus string

const (
	StageRunning StageStatus = "running"
	StageDone    StageStatus = "done"
	StageFailed  StageStatus = "failed"
)

// StageEvent is emitted once per stage transition during an observed run.
type StageEvent struct {
	Stage  string      `json:"stage"`
	Status StageStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// Orchestrator runs a fixed stage sequence: each persona stage in
// roster order, then combine, then moderator. It is built once at
// startup, holds no per-request state, and is safe for concurrent use.
type Orchestrator struct {
	stages []Stage
	logger *zap.SugaredLogger
}

// New builds an orchestrator over an explicit stage sequence.
func New(stages []Stage, logger *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{stages: stages, logger: logger}
}

// Assemble builds the standard pipeline for a persona roster: one stage
// per descriptor (with its corpus loaded from CorpusPath), then combine,
// then moderator.
func Assemble(roster []persona.Descriptor, gw gateway.Client, logger *zap.SugaredLogger) (*Orchestrator, error) {
	stages := make([]Stage, 0, len(roster)+2)
	for _, desc := range roster {
		corpus, err := knowledge.Load(desc.CorpusPath)
		if err != nil {
			return nil, fmt.Errorf("load corpus for %s: %w", desc.Slug, err)
		}
		if corpus.Empty() && logger != nil {
			logger.Warnw("persona corpus is empty", "persona", desc.Slug, "path", desc.CorpusPath)
		}
		stages = append(stages, NewPersonaStage(desc, roster, corpus, gw, logger))
	}

	stages = append(stages, NewCombineStage(roster), NewModeratorStage(roster, gw, logger))

	return New(stages, logger), nil
}

// Invoke runs the full pipeline over the initial state and returns the
// final merged state. Any stage error aborts the whole run: the zero
// State and a run-level error come back, never a partially-filled
// ambiguous result.
func (o *Orchestrator) Invoke(ctx context.Context, initial State) (State, error) {
	return o.run(ctx, initial, nil)
}

// Observe is Invoke with a per-stage event callback, used by the
// streaming handler. The observer must not block.
func (o *Orchestrator) Observe(ctx context.Context, initial State, observer func(StageEvent)) (State, error) {
	return o.run(ctx, initial, observer)
}

func (o *Orchestrator) run(ctx context.Context, initial State, observer func(StageEvent)) (State, error) {
	state := initial.Clone()
	if state.SharedMemory == nil {
		state.SharedMemory = make(map[string]MemoryEntry)
	}
	if state.Contributions == nil {
		state.Contributions = make(map[string]Contribution)
	}

	emit := func(event StageEvent) {
		if observer != nil {
			observer(event)
		}
	}

	for _, stage := range o.stages {
		emit(StageEvent{Stage: stage.Name(), Status: StageRunning})

		delta, err := stage.Run(ctx, state.Clone())
		if err != nil {
			emit(StageEvent{Stage: stage.Name(), Status: StageFailed, Error: err.Error()})
			if o.logger != nil {
				o.logger.Errorw("pipeline run aborted", "stage", stage.Name(), "error", err)
			}
			return State{}, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}

		state.apply(delta)

		// Later personas see earlier responses from this run in addition
		// to any caller-supplied history.
		if delta.Contribution != nil {
			state.CollaborationHistory = append(state.CollaborationHistory, CollabTurn{
				Agent:    delta.Contribution.Agent,
				Response: delta.Contribution.Response,
			})
		}

		emit(StageEvent{Stage: stage.Name(), Status: StageDone})
	}

	return state, nil
}

// Stages exposes the wired stage names in execution order.
func (o *Orchestrator) Stages() []string {
	names := make([]string, 0, len(o.stages))
	for _, stage := range o.stages {
		names = append(names, stage.Name())
	}
	return names
}
