package assessment_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engine "github.com/helpyourself/companion/backend/internal/analysis/assessment"
	model "github.com/helpyourself/companion/backend/internal/model/assessment"
	"github.com/helpyourself/companion/backend/internal/service/assessment"
	"github.com/helpyourself/companion/backend/internal/service/cloud"
	"github.com/helpyourself/companion/backend/internal/storage"
	"github.com/helpyourself/companion/backend/internal/telemetry"
)

var fixedNow = time.Date(2024, 3, 9, 10, 30, 0, 0, time.Local)

func newRunner(t *testing.T, withCloud bool) (*assessment.Runner, storage.Store, cloud.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	opts := assessment.Options{
		Metrics: telemetry.New(),
		Now:     func() time.Time { return fixedNow },
	}
	var cs cloud.Store
	if withCloud {
		bs, err := cloud.OpenBolt(filepath.Join(t.TempDir(), "cloud.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = bs.Close() })
		cs = bs
		opts.Cloud = bs
	}
	return assessment.NewRunner(store, opts, nil), store, cs
}

func repeat(option string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = option
	}
	return out
}

func TestAnxietyRunStoresAnswersAndResult(t *testing.T) {
	ctx := context.Background()
	r, store, cs := newRunner(t, true)

	state, err := r.Complete(ctx, model.KindAnxiety, "user-1", repeat("Nearly every day", 7))
	require.NoError(t, err)
	require.True(t, state.Complete)
	require.NotNil(t, state.Outcome)
	assert.Equal(t, 21, state.Outcome.Score)
	assert.Equal(t, "Severe anxiety", state.Outcome.Interpretation)
	require.NotNil(t, state.Result)

	answers, err := store.AnswersForDate(ctx, model.KindAnxiety, "2024-03-09")
	require.NoError(t, err)
	require.Len(t, answers, 7)
	for i, a := range answers {
		assert.Equal(t, i+1, a.QuestionID)
		assert.Equal(t, 3, a.Score)
	}

	results, err := r.Results(ctx, model.KindAnxiety)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 21, results[0].Score)

	latest, err := cs.LatestMetric(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 10, latest.Anxiety, 0.001)
	assert.Equal(t, fixedNow.UnixMilli(), latest.Timestamp)

	subs, err := cs.Submissions(ctx, "user-1", "gad7")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, 21, subs[0].Score)
	assert.Equal(t, 3, subs[0].Answers["7"].Score)
}

func TestStressStoresReversedScores(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newRunner(t, false)

	state, err := r.Complete(ctx, model.KindStress, "", repeat("Never", 10))
	require.NoError(t, err)
	assert.Equal(t, 16, state.Outcome.Score)

	answers, err := store.AnswersForDate(ctx, model.KindStress, "2024-03-09")
	require.NoError(t, err)
	require.Len(t, answers, 10)
	assert.Equal(t, 4, answers[3].Score)
	assert.Equal(t, 0, answers[0].Score)
}

func TestRetakeReplacesSameDayAnswers(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRunner(t, false)

	_, err := r.Complete(ctx, model.KindAnxiety, "", repeat("Not at all", 7))
	require.NoError(t, err)
	_, err = r.Complete(ctx, model.KindAnxiety, "", repeat("Several days", 7))
	require.NoError(t, err)

	answers, err := r.AnswersForDate(ctx, model.KindAnxiety, "2024-03-09")
	require.NoError(t, err)
	require.Len(t, answers, 7)
	for _, a := range answers {
		assert.Equal(t, 1, a.Score)
	}

	results, err := r.Results(ctx, model.KindAnxiety)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestDepressionRunReplacesAnswersOnCompletion(t *testing.T) {
	ctx := context.Background()
	r, _, cs := newRunner(t, true)

	state, err := r.Start(ctx, model.KindDepression, "user-2")
	require.NoError(t, err)
	require.NotNil(t, state.Question)
	assert.Equal(t, 1, state.Question.ID)

	for i := 0; i < 4; i++ {
		state, err = r.Answer(ctx, state.ID, "No")
		require.NoError(t, err)
	}
	answers, err := r.AnswersForDate(ctx, model.KindDepression, "")
	require.NoError(t, err)
	assert.Empty(t, answers)

	state, err = r.Answer(ctx, state.ID, "No")
	require.NoError(t, err)
	require.True(t, state.Complete)
	assert.Equal(t, engine.NoSymptomsInterpretation, state.Outcome.Interpretation)

	answers, err = r.AnswersForDate(ctx, model.KindDepression, "")
	require.NoError(t, err)
	require.Len(t, answers, 5)
	assert.Equal(t, "No", answers[0].Option)

	subs, err := cs.Submissions(ctx, "user-2", "who_steps")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Len(t, subs[0].Answers, 5)
}

func TestAnswerRejectsUnknownOptionAndFinishedRun(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRunner(t, false)

	state, err := r.Start(ctx, model.KindAnxiety, "")
	require.NoError(t, err)

	_, err = r.Answer(ctx, state.ID, "sometimes maybe")
	require.ErrorIs(t, err, engine.ErrUnknownOption)

	state, err = r.Complete(ctx, model.KindAnxiety, "", repeat("0", 7))
	require.NoError(t, err)
	_, err = r.Answer(ctx, state.ID, "0")
	require.ErrorIs(t, err, engine.ErrRunComplete)
}

func TestRejectedFirstAnswerKeepsStoredAnswers(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRunner(t, false)

	_, err := r.Complete(ctx, model.KindAnxiety, "", repeat("1", 7))
	require.NoError(t, err)

	retake, err := r.Start(ctx, model.KindAnxiety, "")
	require.NoError(t, err)
	for _, option := range []string{"not-an-option", "9", "-1"} {
		_, err = r.Answer(ctx, retake.ID, option)
		require.ErrorIs(t, err, engine.ErrUnknownOption, option)
	}

	answers, err := r.AnswersForDate(ctx, model.KindAnxiety, "")
	require.NoError(t, err)
	assert.Len(t, answers, 7)

	// an accepted first answer starts the retake
	_, err = r.Answer(ctx, retake.ID, "2")
	require.NoError(t, err)
	answers, err = r.AnswersForDate(ctx, model.KindAnxiety, "")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, 2, answers[0].Score)
}

func TestRunsExpire(t *testing.T) {
	ctx := context.Background()
	r := assessment.NewRunner(storage.NewMemoryStore(), assessment.Options{
		Now:          func() time.Time { return fixedNow },
		IdleTTL:      40 * time.Millisecond,
		CompletedTTL: 40 * time.Millisecond,
	}, nil)

	idle, err := r.Start(ctx, model.KindStress, "")
	require.NoError(t, err)
	done, err := r.Complete(ctx, model.KindAnxiety, "", repeat("0", 7))
	require.NoError(t, err)

	_, err = r.State(idle.ID)
	require.NoError(t, err)
	_, err = r.State(done.ID)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	_, err = r.State(idle.ID)
	require.ErrorIs(t, err, assessment.ErrRunNotFound)
	_, err = r.State(done.ID)
	require.ErrorIs(t, err, assessment.ErrRunNotFound)

	// the stored result outlives the run
	results, err := r.Results(ctx, model.KindAnxiety)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestAnsweringKeepsRunAlive(t *testing.T) {
	ctx := context.Background()
	r := assessment.NewRunner(storage.NewMemoryStore(), assessment.Options{
		Now:     func() time.Time { return fixedNow },
		IdleTTL: 150 * time.Millisecond,
	}, nil)

	state, err := r.Start(ctx, model.KindAnxiety, "")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		time.Sleep(60 * time.Millisecond)
		state, err = r.Answer(ctx, state.ID, "1")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, state.Answered)
}

func TestTotalForDate(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRunner(t, false)

	_, err := r.Complete(ctx, model.KindAnxiety, "", repeat("Several days", 7))
	require.NoError(t, err)

	total, err := r.TotalForDate(ctx, model.KindAnxiety, "")
	require.NoError(t, err)
	assert.Equal(t, 7, total)

	total, err = r.TotalForDate(ctx, model.KindAnxiety, "2024-03-08")
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = r.TotalForDate(ctx, model.KindAnxiety, "yesterday")
	require.Error(t, err)
}

func TestResetAndAbandon(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRunner(t, false)

	state, err := r.Start(ctx, model.KindAnxiety, "")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		state, err = r.Answer(ctx, state.ID, "1")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, state.Answered)
	assert.Equal(t, 4, state.Question.ID)

	state, err = r.Reset(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Answered)
	assert.Equal(t, 1, state.Question.ID)
	answers, err := r.AnswersForDate(ctx, model.KindAnxiety, "")
	require.NoError(t, err)
	assert.Empty(t, answers)

	state, err = r.Answer(ctx, state.ID, "2")
	require.NoError(t, err)
	require.NoError(t, r.Abandon(ctx, state.ID))

	answers, err = r.AnswersForDate(ctx, model.KindAnxiety, "")
	require.NoError(t, err)
	assert.Empty(t, answers)

	_, err = r.State(state.ID)
	require.ErrorIs(t, err, assessment.ErrRunNotFound)
}

func TestMissingUserSkipsCloud(t *testing.T) {
	ctx := context.Background()
	r, _, cs := newRunner(t, true)

	_, err := r.Complete(ctx, model.KindAnxiety, "", repeat("0", 7))
	require.NoError(t, err)

	_, err = cs.LatestMetric(ctx, "")
	require.ErrorIs(t, err, cloud.ErrNotAuthenticated)
}

func TestAnswersForDateValidatesDate(t *testing.T) {
	r, _, _ := newRunner(t, false)
	_, err := r.AnswersForDate(context.Background(), model.KindAnxiety, "09/03/2024")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid date"))
}

func TestScaleScore(t *testing.T) {
	assert.InDelta(t, 5, assessment.ScaleScore(model.KindStress, 20), 0.001)
	assert.InDelta(t, 10, assessment.ScaleScore(model.KindDepression, 23), 0.001)
	assert.Zero(t, assessment.ScaleScore(model.Kind("other"), 5))
}
