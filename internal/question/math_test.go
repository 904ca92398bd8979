package question

import (
	"context"
	"math/rand"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestMathCheckIsNumeric(t *testing.T) {
	gen := NewMathGenerator(rand.New(rand.NewSource(1)))
	q := Question{Subject: SubjectMath, CorrectAnswer: "4"}

	assert.True(t, gen.Check(q, "4"))
	assert.True(t, gen.Check(q, "4.0"))
	assert.True(t, gen.Check(q, " 4 "))
	assert.False(t, gen.Check(q, "four"))
	assert.False(t, gen.Check(q, "5"))
}

func TestMathDistractorsAreDistinct(t *testing.T) {
	gen := NewMathGenerator(rand.New(rand.NewSource(42)))

	for _, diff := range []string{DifficultyBeginner, DifficultyModerate, DifficultyHard} {
		for i := 0; i < 200; i++ {
			q, err := gen.Generate(context.Background(), diff, "")
			require.NoError(t, err)

			seen := map[string]bool{q.CorrectAnswer: true}
			for _, w := range q.WrongAnswers {
				require.NotEmpty(t, w)
				require.False(t, seen[w], "duplicate option %s in %q", w, q.Text)
				seen[w] = true
				n, err := strconv.Atoi(w)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, n, 0)
			}
		}
	}
}

func TestMathBeginnerStaysSmall(t *testing.T) {
	gen := NewMathGenerator(rand.New(rand.NewSource(3)))

	for i := 0; i < 200; i++ {
		q, _ := gen.Generate(context.Background(), DifficultyBeginner, "")
		n, err := strconv.Atoi(q.CorrectAnswer)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 20)
	}
}

func TestMathCategoryHonoredWhenValid(t *testing.T) {
	gen := NewMathGenerator(rand.New(rand.NewSource(5)))

	q, _ := gen.Generate(context.Background(), DifficultyHard, CategorySquares)
	assert.Equal(t, CategorySquares, q.Category)

	q, _ = gen.Generate(context.Background(), DifficultyBeginner, CategorySquares)
	assert.Contains(t, []string{CategoryAddition, CategorySubtraction}, q.Category)
}
