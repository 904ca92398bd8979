package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchDecodesEntities(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response_code":0,"results":[
			{"category":"Science &amp; Nature","type":"multiple","difficulty":"medium",
			 "question":"What is &quot;H2O&quot;?","correct_answer":"Water",
			 "incorrect_answers":["Salt","Sand","Air"]},
			{"category":"General","type":"boolean","difficulty":"medium",
			 "question":"skip","correct_answer":"True","incorrect_answers":["False"]}
		]}`))
	}))
	defer srv.Close()

	client := NewOpenTDBClient(srv.URL, srv.Client())
	qs, err := client.Fetch(context.Background(), 2, Difficulty("moderate"))
	require.NoError(t, err)
	require.Len(t, qs, 1)

	assert.Contains(t, gotQuery, "difficulty=medium")
	assert.Contains(t, gotQuery, "type=multiple")
	assert.Equal(t, `What is "H2O"?`, qs[0].Question)
	assert.Equal(t, "Science & Nature", qs[0].Category)
}

func TestFetchResponseCodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response_code":1,"results":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenTDBClient(srv.URL, nil).Fetch(context.Background(), 5, "easy")
	assert.Error(t, err)
}

func TestDifficultyMapping(t *testing.T) {
	assert.Equal(t, "easy", Difficulty("beginner"))
	assert.Equal(t, "medium", Difficulty("moderate"))
	assert.Equal(t, "hard", Difficulty("hard"))
}
