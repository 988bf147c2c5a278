package assessment_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpyourself/companion/backend/internal/analysis/assessment"
)

func answerAll(t *testing.T, d *assessment.Depression, replies ...assessment.Reply) {
	t.Helper()
	for _, r := range replies {
		require.NoError(t, d.Answer(r))
	}
}

func TestDepressionEndsWithoutCoreSymptoms(t *testing.T) {
	d := assessment.NewDepression()
	answerAll(t, d, assessment.No, assessment.No, assessment.No, assessment.No, assessment.No)

	require.True(t, d.Complete())
	out, ok := d.Outcome()
	require.True(t, ok)
	assert.Equal(t, assessment.NoSymptomsInterpretation, out.Interpretation)
	assert.Equal(t, 0, out.Score)
	assert.Equal(t, "1=No;5=No;6=No;7=No;8=No", out.Encoded)
	assert.False(t, out.Urgent)
}

func TestDepressionDurationGate(t *testing.T) {
	d := assessment.NewDepression()
	answerAll(t, d, assessment.No, assessment.No, assessment.Yes, assessment.No, assessment.No)
	q, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, 9, q.ID)

	answerAll(t, d, assessment.No)
	require.True(t, d.Complete())
	out, _ := d.Outcome()
	assert.Contains(t, out.Interpretation, "may not meet the duration")
}

func TestDepressionSevereAndUrgent(t *testing.T) {
	d := assessment.NewDepression()
	answerAll(t, d, assessment.No, assessment.No, assessment.Yes, assessment.Yes, assessment.Yes, assessment.Yes, assessment.Yes)
	for id := 11; id <= 23; id++ {
		q, ok := d.Current()
		require.True(t, ok)
		require.Equal(t, id, q.ID)
		reply := assessment.Yes
		if id == 23 {
			reply = assessment.No
		}
		require.NoError(t, d.Answer(reply))
	}

	out, ok := d.Outcome()
	require.True(t, ok)
	assert.Contains(t, out.Interpretation, "severe depression")
	assert.True(t, out.Urgent)
	assert.True(t, strings.HasPrefix(out.Recommendation, "IMPORTANT:"))
	assert.Equal(t, 17, out.Score)
	assert.Len(t, d.Answers(), 20)
}

func TestDepressionMildWithoutUrgency(t *testing.T) {
	answers := map[int]assessment.Reply{
		1: assessment.No, 5: assessment.No, 6: assessment.Yes, 9: assessment.Yes, 10: assessment.Yes,
		11: assessment.Yes, 12: assessment.Yes, 13: assessment.Yes,
	}
	out := assessment.EvaluateDepression(answers)
	assert.Equal(t, "Your responses suggest mild depressive symptoms.", out.Interpretation)
	assert.False(t, out.Urgent)
	assert.Contains(t, out.Recommendation, "self-care strategies")
}

func TestDepressionPriorDiagnosisUntreated(t *testing.T) {
	out := assessment.EvaluateDepression(map[int]assessment.Reply{1: assessment.Yes, 5: assessment.No})
	assert.Contains(t, out.Interpretation, "not currently under treatment")
	assert.Contains(t, out.Recommendation, "history of depression")
}

func TestNextQuestion(t *testing.T) {
	next, ok := assessment.NextQuestion(1, nil)
	assert.True(t, ok)
	assert.Equal(t, 5, next)

	_, ok = assessment.NextQuestion(10, map[int]assessment.Reply{10: assessment.DontKnow})
	assert.False(t, ok)

	_, ok = assessment.NextQuestion(23, nil)
	assert.False(t, ok)
}

func TestDepressionRejectsUnknownReply(t *testing.T) {
	d := assessment.NewDepression()
	assert.ErrorIs(t, d.Answer("Maybe"), assessment.ErrUnknownOption)

	rec, err := d.Choose("don't know")
	require.NoError(t, err)
	assert.Equal(t, "Don't know", rec.Option)
	assert.Equal(t, 0, rec.Score)
}
