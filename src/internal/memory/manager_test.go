package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	tmp := t.TempDir()
	m := NewManager(filepath.Join(tmp, "global_memory.json"), tmp, zap.NewNop())
	return m, tmp
}

func TestAddExcludedVariableIdempotent(t *testing.T) {
	m, _ := newTestManager(t)

	m.AddExcludedVariable("totalSupply")
	m.AddExcludedVariable("totalSupply")
	m.AddExcludedVariable("")

	assert.Equal(t, []string{"totalSupply"}, m.GetExcludedVariables())
	assert.True(t, m.IsExcluded("totalSupply"))
	assert.False(t, m.IsExcluded("reserve0"))
}

func TestCaseMemoryPersistsAfterEveryMutation(t *testing.T) {
	m, tmp := newTestManager(t)

	m.AddExcludedVariable("a")
	m.AddIncludedVariable("b")
	m.AddPreviousFinding(Finding{Iteration: 0, VulnerabilityFound: false, FailureReason: "no profit"})
	m.AddAnalysisTrick("donation", "donate to skew share price")

	// 新管理器从磁盘恢复同一案例
	m2 := NewManager(filepath.Join(tmp, "global_memory.json"), "", zap.NewNop())
	restored := m2.LoadCaseMemory(tmp)

	assert.Equal(t, []string{"a"}, restored.ExcludedVariables)
	assert.Equal(t, []string{"b"}, restored.IncludedVariables)
	require.Len(t, restored.PreviousFindings, 1)
	assert.Equal(t, "no profit", restored.PreviousFindings[0].FailureReason)
	assert.Equal(t, "donate to skew share price", restored.AnalysisTricks["donation"])
}

func TestCorruptCaseMemoryFallsBackToEmpty(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, caseMemoryFile), []byte("{broken"), 0644))

	m := NewManager(filepath.Join(tmp, "global_memory.json"), "", zap.NewNop())
	restored := m.LoadCaseMemory(tmp)

	assert.Empty(t, restored.ExcludedVariables)
	assert.Empty(t, restored.PreviousFindings)
}

func TestCorruptGlobalMemoryFallsBackToEmpty(t *testing.T) {
	tmp := t.TempDir()
	globalPath := filepath.Join(tmp, "global_memory.json")
	require.NoError(t, os.WriteFile(globalPath, []byte("not json"), 0644))

	m := NewManager(globalPath, tmp, zap.NewNop())

	// 损坏的全局记忆被替换为空默认结构，三个模块齐全
	assert.Empty(t, m.GetGlobalAssumptions(ModuleActionGenerator))
	assert.Empty(t, m.GetAttackPatterns(ModuleActionGenerator))
}

func TestGlobalKnowledgePromotion(t *testing.T) {
	m, tmp := newTestManager(t)
	globalPath := filepath.Join(tmp, "global_memory.json")

	m.UpdateGlobalAssumption(ModuleActionGenerator, "flashloan", "flash loans are always available")
	m.AddAttackPattern(ModuleActionGenerator, "donation_attack", map[string]interface{}{
		"description": "direct transfer inflates share price",
	})
	m.AddFalsePositiveRule("owner_only", "owner-gated paths are not exploitable")

	assert.Equal(t, "flash loans are always available",
		m.GetGlobalAssumptions(ModuleActionGenerator)["flashloan"])

	// 全局记忆已持久化，新进程可见
	m2 := NewManager(globalPath, "", zap.NewNop())
	assumptions := m2.GetGlobalAssumptions(ModuleActionGenerator)
	assert.Equal(t, "flash loans are always available", assumptions["flashloan"])

	patterns := m2.GetAttackPatterns(ModuleActionGenerator)
	require.Contains(t, patterns, "donation_attack")
}

func TestReflectionAttackPatternsFallBackToFalsePositiveRules(t *testing.T) {
	m, _ := newTestManager(t)

	m.AddFalsePositiveRule("twap", "TWAP oracles resist single-block manipulation")

	// reflection 模块没有 attack_patterns，回退到误报规则
	patterns := m.GetAttackPatterns(ModuleReflection)
	assert.Contains(t, patterns, "twap")
}

func TestCaseMemoryFileIsValidJSON(t *testing.T) {
	m, tmp := newTestManager(t)
	m.AddExcludedVariable("x")

	data, err := os.ReadFile(filepath.Join(tmp, caseMemoryFile))
	require.NoError(t, err)

	var caseMem CaseMemory
	require.NoError(t, json.Unmarshal(data, &caseMem))
	assert.Equal(t, []string{"x"}, caseMem.ExcludedVariables)
	assert.NotEmpty(t, caseMem.Meta.LastUpdated)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	m, _ := newTestManager(t)
	m.AddExcludedVariable("a")

	snapshot := m.CaseMemorySnapshot()
	snapshot.ExcludedVariables[0] = "mutated"
	snapshot.AnalysisTricks["new"] = "value"

	assert.Equal(t, []string{"a"}, m.GetExcludedVariables())
	assert.NotContains(t, m.GetAnalysisTricks(), "new")
}
