package review_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/helpyourself/companion/backend/internal/model/assessment"
	"github.com/helpyourself/companion/backend/internal/service/review"
	"github.com/helpyourself/companion/backend/internal/storage"
)

type fakeGenerator struct {
	prompt string
	reply  string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, text string) (string, error) {
	f.prompt = text
	return f.reply, f.err
}

var today = time.Date(2024, 5, 2, 9, 0, 0, 0, time.Local)

func seed(t *testing.T) storage.Store {
	t.Helper()
	store := storage.NewMemoryStore()
	ctx := context.Background()
	for _, a := range []model.Answer{
		{Kind: model.KindAnxiety, QuestionID: 1, Question: "Feeling nervous", Option: "Several days", Score: 1, Date: "2024-05-02"},
		{Kind: model.KindDepression, QuestionID: 1, Question: "Feeling sad", Option: "Yes", Score: 1, Date: "2024-05-02"},
		{Kind: model.KindStress, QuestionID: 1, Question: "Upset", Option: "Never", Score: 0, Date: "2024-05-01"},
	} {
		_, err := store.AppendAnswer(ctx, a)
		require.NoError(t, err)
	}
	return store
}

func TestGenerateBuildsPrompt(t *testing.T) {
	gen := &fakeGenerator{reply: "  You are doing well.  "}
	svc := review.New(seed(t), gen, nil).WithClock(func() time.Time { return today })

	out, err := svc.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "You are doing well.", out.Text)
	assert.Equal(t, "2024-05-02", out.Date)

	assert.True(t, strings.HasPrefix(gen.prompt, "Today's mental-health questionnaire results:"))
	assert.Contains(t, gen.prompt, "Depression Responses:\n• Feeling sad: Yes\n")
	assert.Contains(t, gen.prompt, "Anxiety Responses:\n• Feeling nervous: Several days (score 1)\n")
	assert.Contains(t, gen.prompt, "Stress Responses:\nNo stress questions answered today.")
	assert.True(t, strings.HasSuffix(gen.prompt, "Conclude with an encouraging sentence."))
	assert.Contains(t, gen.prompt, "(≤ 180 words)")
}

func TestGenerateWithoutModel(t *testing.T) {
	svc := review.New(storage.NewMemoryStore(), nil, nil)
	_, err := svc.Generate(context.Background())
	require.ErrorIs(t, err, review.ErrNotConfigured)
	assert.Equal(t, "Could not generate review: review generator not configured", review.Describe(err))
}

func TestGenerateModelFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	svc := review.New(storage.NewMemoryStore(), gen, nil)

	_, err := svc.Generate(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Could not generate review: quota exceeded", review.Describe(err))
}
