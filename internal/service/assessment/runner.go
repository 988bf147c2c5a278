// Package assessment runs questionnaires and persists their answers and
// results.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	engine "github.com/helpyourself/companion/backend/internal/analysis/assessment"
	model "github.com/helpyourself/companion/backend/internal/model/assessment"
	"github.com/helpyourself/companion/backend/internal/model/metric"
	"github.com/helpyourself/companion/backend/internal/service/cloud"
	"github.com/helpyourself/companion/backend/internal/storage"
	"github.com/helpyourself/companion/backend/internal/telemetry"
)

var ErrRunNotFound = errors.New("assessment run not found")

// Defaults for how long runs stay addressable.
const (
	DefaultIdleTTL      = 24 * time.Hour
	DefaultCompletedTTL = 10 * time.Minute
)

// Maximum totals used to scale scores onto 0-10 for the cloud metric.
var maxTotals = map[model.Kind]float32{
	model.KindAnxiety:    21,
	model.KindStress:     40,
	model.KindDepression: 23,
}

// RunState is a snapshot of a run for callers.
type RunState struct {
	ID       string           `json:"id"`
	Kind     model.Kind       `json:"kind"`
	Date     string           `json:"date"`
	Question *engine.Question `json:"question,omitempty"`
	Answered int              `json:"answered"`
	Complete bool             `json:"complete"`
	Outcome  *engine.Outcome  `json:"outcome,omitempty"`
	Result   *model.Result    `json:"result,omitempty"`
}

// Options tunes a Runner.
type Options struct {
	Cloud   cloud.Store
	Metrics *telemetry.Metrics
	Now     func() time.Time
	// IdleTTL drops an unfinished run nobody has touched for this long.
	IdleTTL time.Duration
	// CompletedTTL keeps a finished run readable for this long.
	CompletedTTL time.Duration
}

type run struct {
	mu       sync.Mutex
	id       string
	kind     model.Kind
	userID   string
	date     string
	engine   engine.Engine
	recorded []engine.Recorded
	result   *model.Result
	dropped  bool
}

// Runner keeps runs in an expiring in-memory cache. Finished runs are
// evicted after CompletedTTL, idle ones after IdleTTL.
type Runner struct {
	store   storage.Store
	cloud   cloud.Store
	metrics *telemetry.Metrics
	now     func() time.Time
	logger  *zap.Logger

	runs         *cache.Cache
	idleTTL      time.Duration
	completedTTL time.Duration
}

// NewRunner wires a runner. A nil cloud store disables syncing.
func NewRunner(store storage.Store, opts Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	idle := opts.IdleTTL
	if idle <= 0 {
		idle = DefaultIdleTTL
	}
	completed := opts.CompletedTTL
	if completed <= 0 {
		completed = DefaultCompletedTTL
	}
	return &Runner{
		store:        store,
		cloud:        opts.Cloud,
		metrics:      opts.Metrics,
		now:          now,
		logger:       logger.Named("assessment"),
		runs:         cache.New(idle, min(idle, completed, 10*time.Minute)),
		idleTTL:      idle,
		completedTTL: completed,
	}
}

// Start opens a run of kind for userID. userID may be empty, in which
// case nothing is synced to the cloud.
func (r *Runner) Start(ctx context.Context, kind model.Kind, userID string) (RunState, error) {
	eng, err := engine.New(kind)
	if err != nil {
		return RunState{}, err
	}

	rn := &run{
		id:     uuid.NewString(),
		kind:   kind,
		userID: userID,
		date:   r.today(),
		engine: eng,
	}

	if kind == model.KindDepression {
		r.clearDate(ctx, rn)
	}

	r.runs.Set(rn.id, rn, r.idleTTL)

	r.logger.Debug("run started", zap.String("run_id", rn.id), zap.String("kind", string(kind)))
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.state(), nil
}

// Answer records option for the current question of runID.
func (r *Runner) Answer(ctx context.Context, runID, option string) (RunState, error) {
	rn, err := r.get(runID)
	if err != nil {
		return RunState{}, err
	}
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.dropped {
		return RunState{}, ErrRunNotFound
	}

	rec, err := rn.engine.Choose(option)
	if err != nil {
		return RunState{}, err
	}
	rn.recorded = append(rn.recorded, rec)

	if rn.kind != model.KindDepression {
		if rec.Question.ID == 1 {
			// retaking on the same day replaces that day's answers
			r.clearDate(ctx, rn)
		}
		if _, err := r.store.AppendAnswer(ctx, r.toAnswer(rn, rec)); err != nil {
			r.logger.Error("store answer", zap.String("run_id", rn.id), zap.Error(err))
		}
	}

	if rn.engine.Complete() {
		r.finish(ctx, rn)
		r.runs.Set(rn.id, rn, r.completedTTL)
	} else {
		r.runs.Set(rn.id, rn, r.idleTTL)
	}
	return rn.state(), nil
}

// Reset restarts runID and deletes the answers stored today for its kind.
func (r *Runner) Reset(ctx context.Context, runID string) (RunState, error) {
	rn, err := r.get(runID)
	if err != nil {
		return RunState{}, err
	}
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.dropped {
		return RunState{}, ErrRunNotFound
	}

	rn.engine.Reset()
	rn.recorded = nil
	rn.result = nil
	rn.date = r.today()
	r.clearDate(ctx, rn)
	r.runs.Set(rn.id, rn, r.idleTTL)
	return rn.state(), nil
}

// Abandon drops runID. An incomplete run also loses its stored answers.
func (r *Runner) Abandon(ctx context.Context, runID string) error {
	rn, err := r.get(runID)
	if err != nil {
		return err
	}
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.dropped = true
	r.runs.Delete(runID)
	if !rn.engine.Complete() && len(rn.recorded) > 0 {
		r.clearDate(ctx, rn)
	}
	return nil
}

// State returns the current snapshot of runID.
func (r *Runner) State(runID string) (RunState, error) {
	rn, err := r.get(runID)
	if err != nil {
		return RunState{}, err
	}
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.state(), nil
}

// Results lists stored results of kind, newest first.
func (r *Runner) Results(ctx context.Context, kind model.Kind) ([]model.Result, error) {
	return r.store.ListResults(ctx, kind)
}

// AnswersForDate lists stored answers of kind for date. An empty date
// means today.
func (r *Runner) AnswersForDate(ctx context.Context, kind model.Kind, date string) ([]model.Answer, error) {
	if date == "" {
		date = r.today()
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return r.store.AnswersForDate(ctx, kind, date)
}

// TotalForDate sums the stored scores of kind for date. An empty date
// means today.
func (r *Runner) TotalForDate(ctx context.Context, kind model.Kind, date string) (int, error) {
	if date == "" {
		date = r.today()
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return r.store.TotalScoreForDate(ctx, kind, date)
}

// Complete runs a whole questionnaire from a list of options.
func (r *Runner) Complete(ctx context.Context, kind model.Kind, userID string, options []string) (RunState, error) {
	state, err := r.Start(ctx, kind, userID)
	if err != nil {
		return RunState{}, err
	}
	for _, option := range options {
		if state.Complete {
			break
		}
		if state, err = r.Answer(ctx, state.ID, option); err != nil {
			return state, err
		}
	}
	if !state.Complete {
		return state, fmt.Errorf("%d options did not complete the %s questionnaire", len(options), kind)
	}
	return state, nil
}

func (r *Runner) finish(ctx context.Context, rn *run) {
	outcome, ok := rn.engine.Outcome()
	if !ok {
		return
	}

	if rn.kind == model.KindDepression {
		answers := make([]model.Answer, 0, len(rn.recorded))
		for _, rec := range rn.recorded {
			answers = append(answers, r.toAnswer(rn, rec))
		}
		if err := r.store.ReplaceAnswers(ctx, rn.kind, rn.date, answers); err != nil {
			r.logger.Error("store depression answers", zap.String("run_id", rn.id), zap.Error(err))
		}
	}

	result, err := r.store.AppendResult(ctx, model.Result{
		Kind:           rn.kind,
		AnswersEncoded: outcome.Encoded,
		Interpretation: outcome.Interpretation,
		Recommendation: outcome.Recommendation,
		Score:          outcome.Score,
		Urgent:         outcome.Urgent,
		Timestamp:      r.now(),
	})
	if err != nil {
		r.logger.Error("store result", zap.String("run_id", rn.id), zap.Error(err))
	} else {
		rn.result = &result
	}

	r.metrics.AssessmentCompleted(string(rn.kind))
	r.logger.Info("run complete",
		zap.String("run_id", rn.id),
		zap.String("kind", string(rn.kind)),
		zap.Int("score", outcome.Score),
		zap.Bool("urgent", outcome.Urgent))

	r.sync(context.WithoutCancel(ctx), rn, outcome)
}

func (r *Runner) sync(ctx context.Context, rn *run, outcome engine.Outcome) {
	if r.cloud == nil {
		return
	}
	if rn.userID == "" {
		r.logger.Warn("skip cloud sync", zap.String("run_id", rn.id), zap.Error(cloud.ErrNotAuthenticated))
		return
	}

	ts := r.now().UnixMilli()
	answers := make(map[string]metric.AnswerDetail, len(rn.recorded))
	for _, rec := range rn.recorded {
		answers[strconv.Itoa(rec.Question.ID)] = metric.AnswerDetail{Option: rec.Option, Score: rec.Score}
	}
	sub := metric.Submission{
		Timestamp: ts,
		Type:      rn.kind.CloudType(),
		Answers:   answers,
		Score:     outcome.Score,
	}
	if err := r.cloud.SaveSubmission(ctx, rn.userID, sub); err != nil {
		r.metrics.CollaboratorFailure("cloud")
		r.logger.Error("sync submission", zap.String("run_id", rn.id), zap.Error(err))
	}

	m := metric.Metric{UserID: rn.userID, Timestamp: ts}
	scaled := ScaleScore(rn.kind, outcome.Score)
	switch rn.kind {
	case model.KindAnxiety:
		m.Anxiety = scaled
	case model.KindStress:
		m.Stress = scaled
	case model.KindDepression:
		m.Depression = scaled
	}
	if err := r.cloud.SaveMetric(ctx, m); err != nil {
		r.metrics.CollaboratorFailure("cloud")
		r.logger.Error("sync metric", zap.String("run_id", rn.id), zap.Error(err))
	}
}

// ScaleScore maps a questionnaire total onto 0-10.
func ScaleScore(kind model.Kind, score int) float32 {
	total, ok := maxTotals[kind]
	if !ok || total == 0 {
		return 0
	}
	return float32(score) / total * 10
}

func (r *Runner) toAnswer(rn *run, rec engine.Recorded) model.Answer {
	return model.Answer{
		Kind:       rn.kind,
		QuestionID: rec.Question.ID,
		Question:   rec.Question.Text,
		Option:     rec.Option,
		Score:      rec.Score,
		Date:       rn.date,
		Timestamp:  r.now(),
	}
}

func (r *Runner) clearDate(ctx context.Context, rn *run) {
	if err := r.store.DeleteAnswersByDate(ctx, rn.kind, rn.date); err != nil {
		r.logger.Error("delete answers", zap.String("run_id", rn.id), zap.String("date", rn.date), zap.Error(err))
	}
}

func (r *Runner) get(runID string) (*run, error) {
	v, ok := r.runs.Get(runID)
	if !ok {
		return nil, ErrRunNotFound
	}
	return v.(*run), nil
}

func (r *Runner) today() string {
	return r.now().Format(model.DateLayout)
}

// state must be called with rn.mu held.
func (rn *run) state() RunState {
	st := RunState{
		ID:       rn.id,
		Kind:     rn.kind,
		Date:     rn.date,
		Answered: len(rn.recorded),
		Complete: rn.engine.Complete(),
		Result:   rn.result,
	}
	if q, ok := rn.engine.Current(); ok {
		st.Question = &q
	}
	if out, ok := rn.engine.Outcome(); ok {
		st.Outcome = &out
	}
	return st
}
