package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/admi-n/solidity-Prospector/src/internal/memory"
	"github.com/admi-n/solidity-Prospector/src/strategy/prompts"
)

// fakeCompleter 按脚本顺序返回响应，耗尽后重复最后一个
type fakeCompleter struct {
	responses []string
	calls     int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func (f *fakeCompleter) Name() string { return "fake" }

// failingCompleter 每次调用都失败
type failingCompleter struct{}

func (f *failingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("connection refused")
}

func (f *failingCompleter) Name() string { return "failing" }

func newTestAnalyzer(t *testing.T, client Completer, maxIterations int) *Analyzer {
	t.Helper()
	tmp := t.TempDir()
	mem := memory.NewManager(filepath.Join(tmp, "global_memory.json"), tmp, zap.NewNop())
	builder := prompts.NewBuilder(prompts.Assumptions{}, "")
	return NewAnalyzer(client, mem, builder, zap.NewNop(), Config{
		MaxIterations: maxIterations,
		Goal:          "drain the vault",
		Target:        "withdraw function",
	})
}

const preprocessTwoVars = `{
	"token_flow_description": "vault pays out on withdraw",
	"variables": {
		"shares": {"type": "local", "manipulation_difficulty": "easy"},
		"price":  {"type": "state", "manipulation_difficulty": "medium"}
	},
	"dependencies": {
		"oracle()": {"type": "function", "manipulation_difficulty": "easy"}
	}
}`

const pathOK = `{"code_path": "withdraw()", "analysis_focus": "share price", "manipulation_strategy": "inflate shares"}`

const actionVulnHigh = `{
	"vulnerability_found": true,
	"vulnerability_type": "price manipulation",
	"attack_scenario": "donate to inflate share price",
	"confidence": "high"
}`

const actionNoVuln = `{"vulnerability_found": false, "confidence": "low", "reasons_if_not_feasible": "invariant holds"}`

const reflectionGoalMet = `{"goal_met": true, "finding_quality": "high", "evaluation": "attack is sound"}`

const reflectionGoalNotMet = `{"goal_met": false, "critical_flaws": "attacker cannot cover gas", "suggestions": "try fees"}`

func TestAnalyzeGoalMetTerminatesImmediately(t *testing.T) {
	client := &fakeCompleter{responses: []string{
		preprocessTwoVars,
		pathOK, actionVulnHigh, reflectionGoalMet,
	}}
	a := newTestAnalyzer(t, client, 5)

	report, err := a.Analyze(context.Background(), "contract Vault {}")
	require.NoError(t, err)

	assert.Equal(t, StatusVulnerabilityFound, report.Status)
	assert.Equal(t, 1, report.IterationsPerformed)
	require.NotNil(t, report.BestFinding)
	assert.Equal(t, 0, report.BestFinding.Iteration)
	assert.Equal(t, "price manipulation", report.BestFinding.Action.VulnerabilityType)

	// 目标达成后立即终止：1 次预处理 + 每轮 3 次 = 4 次调用
	assert.Equal(t, 4, client.calls)
}

func TestAnalyzeExhaustionTerminates(t *testing.T) {
	preprocessOneVar := `{
		"token_flow_description": "simple transfer",
		"variables": {"amount": {"manipulation_difficulty": "easy"}},
		"dependencies": {}
	}`
	client := &fakeCompleter{responses: []string{
		preprocessOneVar,
		pathOK, actionNoVuln, reflectionGoalNotMet,
	}}
	a := newTestAnalyzer(t, client, 5)

	report, err := a.Analyze(context.Background(), "contract T {}")
	require.NoError(t, err)

	// 第一轮即覆盖全部候选，耗尽检查在轮末触发
	assert.Equal(t, StatusAnalysisComplete, report.Status)
	assert.Equal(t, 1, report.IterationsPerformed)
	assert.Nil(t, report.BestFinding)
	assert.Equal(t, "Complete", report.AnalysisSummary.AnalysisCompletion)
}

func TestAnalyzeEmptyCatalogStillRunsOneRound(t *testing.T) {
	// 预处理不可解析 -> 空目录 -> 第 0 轮照常执行 -> 耗尽终止
	client := &fakeCompleter{responses: []string{"total garbage"}}
	a := newTestAnalyzer(t, client, 5)

	report, err := a.Analyze(context.Background(), "contract T {}")
	require.NoError(t, err)

	assert.Equal(t, StatusAnalysisComplete, report.Status)
	assert.Equal(t, 1, report.IterationsPerformed)
	assert.Equal(t, 0, report.AnalysisSummary.TotalVariables)
}

func TestAnalyzeMaxIterations(t *testing.T) {
	manyVars := `{
		"token_flow_description": "many knobs",
		"variables": {
			"v1": {"manipulation_difficulty": "easy"},
			"v2": {"manipulation_difficulty": "easy"},
			"v3": {"manipulation_difficulty": "easy"},
			"v4": {"manipulation_difficulty": "easy"},
			"v5": {"manipulation_difficulty": "easy"}
		},
		"dependencies": {}
	}`
	client := &fakeCompleter{responses: []string{
		manyVars,
		pathOK, actionNoVuln, reflectionGoalNotMet,
		pathOK, actionNoVuln, reflectionGoalNotMet,
		pathOK, actionNoVuln, reflectionGoalNotMet,
	}}
	a := newTestAnalyzer(t, client, 3)

	report, err := a.Analyze(context.Background(), "contract T {}")
	require.NoError(t, err)

	assert.Equal(t, StatusMaxIterations, report.Status)
	assert.Equal(t, 3, report.IterationsPerformed)
	assert.Equal(t, "Incomplete", report.AnalysisSummary.AnalysisCompletion)
	assert.Equal(t, 3, report.AnalysisSummary.AnalyzedVariables)
}

func TestAnalyzeClientFailuresNeverCrash(t *testing.T) {
	a := newTestAnalyzer(t, &failingCompleter{}, 5)

	report, err := a.Analyze(context.Background(), "contract T {}")
	require.NoError(t, err)
	require.NotNil(t, report)

	// 预处理失败 -> 空目录 -> 一轮降级记录后耗尽终止
	assert.Equal(t, StatusAnalysisComplete, report.Status)
	require.Len(t, report.AllFindings, 1)
	round := report.AllFindings[0]
	assert.False(t, round.Action.VulnerabilityFound)
	assert.Contains(t, round.Action.RawResponse, "completion error")
}

func TestAnalyzeReflectionUpdatesMemory(t *testing.T) {
	preprocessThreeVars := `{
		"token_flow_description": "vault pays out on withdraw",
		"variables": {
			"shares": {"manipulation_difficulty": "easy"},
			"price":  {"manipulation_difficulty": "medium"},
			"fee":    {"manipulation_difficulty": "hard"}
		},
		"dependencies": {
			"oracle()": {"manipulation_difficulty": "easy"}
		}
	}`
	client := &fakeCompleter{responses: []string{
		preprocessThreeVars,
		pathOK, actionNoVuln,
		`{"goal_met": false, "variables_to_exclude": ["price"], "variables_to_include": ["shares"]}`,
		pathOK, actionNoVuln, reflectionGoalNotMet,
		pathOK, actionNoVuln, reflectionGoalNotMet,
	}}

	tmp := t.TempDir()
	mem := memory.NewManager(filepath.Join(tmp, "global_memory.json"), tmp, zap.NewNop())
	builder := prompts.NewBuilder(prompts.Assumptions{}, "")
	a := NewAnalyzer(client, mem, builder, zap.NewNop(), Config{MaxIterations: 5, Goal: "g", Target: "t"})

	report, err := a.Analyze(context.Background(), "contract Vault {}")
	require.NoError(t, err)

	// price 被排除后不再出现在后续工作集中
	assert.Contains(t, mem.GetExcludedVariables(), "price")
	for _, round := range report.AllFindings[1:] {
		assert.NotContains(t, round.Variables, "price")
	}

	// 历史结论按轮追加
	assert.Len(t, mem.GetPreviousFindings(), report.IterationsPerformed)
}

func TestAnalyzeContextCancelledAtRoundBoundary(t *testing.T) {
	client := &fakeCompleter{responses: []string{preprocessTwoVars, pathOK, actionNoVuln, reflectionGoalNotMet}}
	a := newTestAnalyzer(t, client, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := a.Analyze(ctx, "contract T {}")
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.IterationsPerformed)
}
