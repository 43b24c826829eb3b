package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/tabletalk-ai/server/internal/core/error"
)

const validPayload = `{
	"code": "total = df['sales'].sum()",
	"steps": ["filter 2020 rows", "sum the sales column"],
	"results": ["1834200.50"],
	"final_answer": "Total sales in 2020 were 1,834,200.50"
}`

func TestParseValidResponse(t *testing.T) {
	resp, err := ParseAnalysisResponse(validPayload)
	require.NoError(t, err)
	assert.Equal(t, "total = df['sales'].sum()", resp.Code)
	assert.Equal(t, []string{"filter 2020 rows", "sum the sales column"}, resp.Steps)
	assert.Equal(t, []string{"1834200.50"}, resp.Results)
	assert.Equal(t, "Total sales in 2020 were 1,834,200.50", resp.FinalAnswer)
}

func TestParseResponseWrappedInProse(t *testing.T) {
	raw := "Here is the analysis you asked for:\n" + validPayload + "\nLet me know if you need more."
	resp, err := ParseAnalysisResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Total sales in 2020 were 1,834,200.50", resp.FinalAnswer)
}

func TestParseUnwrapsNestedProperties(t *testing.T) {
	raw := `{"properties": ` + validPayload + `}`
	resp, err := ParseAnalysisResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "total = df['sales'].sum()", resp.Code)
}

func TestParseMissingFieldsNamed(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		missing []string
	}{
		{
			name:    "no steps",
			payload: `{"code": "x", "results": [], "final_answer": "y"}`,
			missing: []string{"steps"},
		},
		{
			name:    "no results or final answer",
			payload: `{"code": "x", "steps": []}`,
			missing: []string{"results", "final_answer"},
		},
		{
			name:    "empty object",
			payload: `{}`,
			missing: []string{"code", "steps", "results", "final_answer"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := ParseAnalysisResponse(tc.payload)
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Equal(t, errx.KindValidation, errx.KindOf(err))
			for _, name := range tc.missing {
				assert.Contains(t, err.Error(), name)
			}
		})
	}
}

func TestParseNoJSONSpan(t *testing.T) {
	for _, raw := range []string{"", "no json here", "only an opening { brace", "only a closing } brace... }{"} {
		resp, err := ParseAnalysisResponse(raw)
		require.Error(t, err, "input %q", raw)
		assert.Nil(t, resp)
		assert.Equal(t, errx.KindParse, errx.KindOf(err))
	}
}

func TestParseMalformedJSON(t *testing.T) {
	resp, err := ParseAnalysisResponse(`{"code": "x", "steps": [}`)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, errx.KindParse, errx.KindOf(err))
}

func TestParseWrongFieldType(t *testing.T) {
	resp, err := ParseAnalysisResponse(`{"code": "x", "steps": "not a list", "results": [], "final_answer": "y"}`)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, errx.KindValidation, errx.KindOf(err))
	assert.Contains(t, err.Error(), "steps")
}

func TestParseOversizedContentKeepsTail(t *testing.T) {
	raw := strings.Repeat("x", maxContentLen) + validPayload
	resp, err := ParseAnalysisResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Total sales in 2020 were 1,834,200.50", resp.FinalAnswer)
}
