package parser

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDirectJSON(t *testing.T) {
	p := NewParser()

	var result PathResult
	err := p.Extract(`{"code_path": "function withdraw()", "analysis_focus": "balance"}`, &result)
	require.NoError(t, err)
	assert.Equal(t, "function withdraw()", result.CodePath)
	assert.Equal(t, "balance", result.AnalysisFocus)
}

func TestExtractMarkdownFence(t *testing.T) {
	p := NewParser()

	response := "Here is my analysis:\n```json\n{\"analysis_focus\": \"reserves\"}\n```\nHope this helps."
	var result PathResult
	err := p.Extract(response, &result)
	require.NoError(t, err)
	assert.Equal(t, "reserves", result.AnalysisFocus)
}

func TestExtractBraceSlice(t *testing.T) {
	p := NewParser()

	response := `Sure! The result is {"vulnerability_found": true, "confidence": "high"} as requested.`
	var result ActionResult
	err := p.Extract(response, &result)
	require.NoError(t, err)
	assert.True(t, result.VulnerabilityFound)
	assert.Equal(t, "high", result.Confidence)
}

func TestParseActionFallback(t *testing.T) {
	p := NewParser()

	raw := "I could not produce JSON, sorry."
	result, err := p.ParseAction(raw)

	require.Error(t, err)
	var pf *ParseFailure
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, raw, pf.Raw)

	// 降级记录永远是"安全"的：不标记漏洞、低置信度、保留原始文本
	require.NotNil(t, result)
	assert.False(t, result.VulnerabilityFound)
	assert.Equal(t, "low", result.Confidence)
	assert.Equal(t, ParseErrorMarker, result.VulnerabilityType)
	assert.Equal(t, raw, result.RawResponse)
}

func TestParseReflectionFallback(t *testing.T) {
	p := NewParser()

	result, err := p.ParseReflection("```json\nnot even close\n```")
	require.Error(t, err)

	require.NotNil(t, result)
	assert.False(t, result.GoalMet)
	assert.Empty(t, []string(result.VariablesToExclude))
	assert.Empty(t, []string(result.VariablesToInclude))
}

func TestParsePreprocessFallbackEmptyCatalog(t *testing.T) {
	p := NewParser()

	result, err := p.ParsePreprocess("no structure here")
	require.Error(t, err)

	require.NotNil(t, result)
	assert.Empty(t, result.Variables)
	assert.Empty(t, result.Dependencies)
	assert.Equal(t, ParseErrorMarker, result.TokenFlowDescription)
}

func TestParseReflectionStringCoercion(t *testing.T) {
	p := NewParser()

	response := `{
		"goal_met": false,
		"variables_to_exclude": "totalSupply",
		"variables_to_include": ["reserve0", "reserve1"]
	}`

	result, err := p.ParseReflection(response)
	require.NoError(t, err)
	assert.Equal(t, []string{"totalSupply"}, []string(result.VariablesToExclude))
	assert.Equal(t, []string{"reserve0", "reserve1"}, []string(result.VariablesToInclude))
}

func TestStringListUnmarshal(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"json list", `["a", "b"]`, []string{"a", "b"}},
		{"bare string", `"a"`, []string{"a"}},
		{"empty string", `""`, []string{}},
		{"string-encoded list", `"[\"a\", \"b\"]"`, []string{"a", "b"}},
		{"number", `42`, []string{}},
		{"object", `{"a": 1}`, []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var l StringList
			require.NoError(t, json.Unmarshal([]byte(tc.in), &l))
			assert.Equal(t, tc.want, []string(l))
		})
	}
}

func TestConfidenceScore(t *testing.T) {
	assert.Equal(t, 3, ConfidenceScore("high"))
	assert.Equal(t, 2, ConfidenceScore("Medium"))
	assert.Equal(t, 1, ConfidenceScore(" low "))
	assert.Equal(t, 0, ConfidenceScore("unknown"))
	assert.Equal(t, 0, ConfidenceScore(""))
}
