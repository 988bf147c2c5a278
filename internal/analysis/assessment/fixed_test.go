package assessment_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpyourself/companion/backend/internal/analysis/assessment"
)

func TestPSS10ReversesPositiveItems(t *testing.T) {
	f := assessment.NewFixed(assessment.PSS10)

	raw := []int{1, 2, 3, 4, 0, 2, 1, 3, 2, 4}
	for _, s := range raw {
		_, err := f.Answer(s)
		require.NoError(t, err)
	}
	require.True(t, f.Complete())

	// positions 4,5,7,8 become 4-raw
	want := 1 + 2 + 3 + (4 - 4) + (4 - 0) + 2 + (4 - 1) + (4 - 3) + 2 + 4
	out, ok := f.Outcome()
	require.True(t, ok)
	assert.Equal(t, want, out.Score)
	assert.Equal(t, "1=1;2=2;3=3;4=0;5=4;6=2;7=3;8=1;9=2;10=4", out.Encoded)
	assert.Equal(t, "Moderate stress", out.Interpretation)
}

func TestPSS10ReversalByPosition(t *testing.T) {
	reversed := map[int]bool{4: true, 5: true, 7: true, 8: true}
	for position := 1; position <= 10; position++ {
		for _, raw := range []int{0, 4} {
			f := assessment.NewFixed(assessment.PSS10)
			var stored int
			for i := 1; i <= 10; i++ {
				score := 2
				if i == position {
					score = raw
				}
				value, err := f.Answer(score)
				require.NoError(t, err)
				if i == position {
					stored = value
				}
			}

			want := raw
			if reversed[position] {
				want = 4 - raw
			}
			assert.Equal(t, want, stored, "position %d raw %d", position, raw)
			// every other item answered 2, which reversal leaves unchanged
			assert.Equal(t, 18+want, f.Score(), "position %d raw %d", position, raw)
		}
	}
}

func TestGAD7Bands(t *testing.T) {
	cases := []struct {
		scores []int
		want   string
	}{
		{[]int{0, 0, 0, 0, 0, 0, 0}, "No anxiety"},
		{[]int{1, 1, 1, 1, 0, 0, 0}, "No anxiety"},
		{[]int{1, 1, 1, 1, 1, 0, 0}, "Mild anxiety"},
		{[]int{3, 3, 3, 0, 0, 0, 0}, "Mild anxiety"},
		{[]int{3, 3, 3, 1, 0, 0, 0}, "Moderate anxiety"},
		{[]int{3, 3, 3, 3, 2, 0, 0}, "Moderate anxiety"},
		{[]int{3, 3, 3, 3, 3, 0, 0}, "Severe anxiety"},
	}
	for _, tc := range cases {
		f := assessment.NewFixed(assessment.GAD7)
		for _, s := range tc.scores {
			_, err := f.Answer(s)
			require.NoError(t, err)
		}
		out, ok := f.Outcome()
		require.True(t, ok)
		assert.Equal(t, tc.want, out.Interpretation, "scores %v", tc.scores)
	}
}

func TestFixedRejectsOutOfRange(t *testing.T) {
	f := assessment.NewFixed(assessment.GAD7)
	_, err := f.Answer(4)
	if !errors.Is(err, assessment.ErrInvalidScore) {
		t.Fatalf("expected ErrInvalidScore, got %v", err)
	}
	if f.Index() != 0 {
		t.Fatalf("index advanced on invalid score: %d", f.Index())
	}
}

func TestFixedCompleteRejectsFurtherAnswers(t *testing.T) {
	f := assessment.NewFixed(assessment.GAD7)
	for i := 0; i < 7; i++ {
		_, err := f.Choose("0")
		require.NoError(t, err)
	}
	_, err := f.Choose("0")
	assert.ErrorIs(t, err, assessment.ErrRunComplete)

	f.Reset()
	assert.False(t, f.Complete())
	q, ok := f.Current()
	require.True(t, ok)
	assert.Equal(t, 1, q.ID)
}

func TestChooseByLabel(t *testing.T) {
	f := assessment.NewFixed(assessment.PSS10)
	rec, err := f.Choose("sometimes")
	require.NoError(t, err)
	assert.Equal(t, "Sometimes", rec.Option)
	assert.Equal(t, 2, rec.Score)

	_, err = f.Choose("constantly")
	assert.ErrorIs(t, err, assessment.ErrUnknownOption)
}
