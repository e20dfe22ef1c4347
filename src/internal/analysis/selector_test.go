package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/solidity-Prospector/src/internal/ai/parser"
)

func testCatalog() *Catalog {
	return BuildCatalog(&parser.PreprocessResult{
		TokenFlowDescription: "tokens flow from vault to caller",
		Variables: map[string]parser.EntryInfo{
			"amountIn":  {Type: "local", ManipulationDifficulty: "easy"},
			"feeRate":   {Type: "state", ManipulationDifficulty: "medium"},
			"owner":     {Type: "state", ManipulationDifficulty: "impossible"},
			"totalDebt": {Type: "state", ManipulationDifficulty: "hard"},
		},
		Dependencies: map[string]parser.EntryInfo{
			"getPrice()": {Type: "function", ManipulationDifficulty: "easy"},
			"onlyOwner":  {Type: "modifier", ManipulationDifficulty: "impossible"},
		},
	})
}

func TestSelectorDifficultyOrder(t *testing.T) {
	s := NewSelector(testCatalog())

	// 难度升序：easy -> medium -> hard，impossible 永不入选
	r1 := s.NextRound(nil, nil)
	assert.Equal(t, "amountIn", r1.NewVariable)
	assert.Equal(t, "getPrice()", r1.NewDependency)

	r2 := s.NextRound(nil, nil)
	assert.Equal(t, "feeRate", r2.NewVariable)
	assert.Empty(t, r2.NewDependency) // onlyOwner 是 impossible

	r3 := s.NextRound(nil, nil)
	assert.Equal(t, "totalDebt", r3.NewVariable)

	// 没有可选候选也是合法状态
	r4 := s.NextRound(nil, nil)
	assert.Empty(t, r4.NewVariable)
	assert.Empty(t, r4.NewDependency)
}

func TestSelectorCumulativeWorkingSet(t *testing.T) {
	s := NewSelector(testCatalog())

	r1 := s.NextRound(nil, nil)
	assert.Equal(t, []string{"amountIn"}, r1.Variables)

	r2 := s.NextRound(nil, nil)
	assert.Equal(t, []string{"amountIn", "feeRate"}, r2.Variables)

	r3 := s.NextRound(nil, nil)
	assert.Equal(t, []string{"amountIn", "feeRate", "totalDebt"}, r3.Variables)
	assert.Equal(t, []string{"getPrice()"}, r3.Dependencies)
}

func TestSelectorIncludedPriority(t *testing.T) {
	s := NewSelector(testCatalog())

	// 显式包含优先于难度扫描，未知标识符被跳过
	r1 := s.NextRound(nil, []string{"ghost", "totalDebt"})
	assert.Equal(t, "totalDebt", r1.NewVariable)

	// 包含列表耗尽后回到难度扫描
	r2 := s.NextRound(nil, []string{"ghost", "totalDebt"})
	assert.Equal(t, "amountIn", r2.NewVariable)
}

func TestSelectorExclusionRemovesFromWorkingSet(t *testing.T) {
	s := NewSelector(testCatalog())

	s.NextRound(nil, nil) // amountIn
	s.NextRound(nil, nil) // feeRate

	// amountIn 被排除：工作集剔除它，但仍计入已检查
	r3 := s.NextRound([]string{"amountIn"}, nil)
	assert.NotContains(t, r3.Variables, "amountIn")
	assert.Contains(t, r3.Variables, "feeRate")
	assert.Contains(t, s.ExaminedVariables(), "amountIn")
}

func TestSelectorExhausted(t *testing.T) {
	s := NewSelector(testCatalog())

	assert.False(t, s.Exhausted(nil))

	s.NextRound(nil, nil) // amountIn + getPrice()
	s.NextRound(nil, nil) // feeRate
	s.NextRound(nil, nil) // totalDebt

	// owner 和 onlyOwner 是 impossible，永远不会被检查
	assert.False(t, s.Exhausted(nil))

	// owner 被排除后变量侧覆盖，但 onlyOwner 仍未检查
	assert.False(t, s.Exhausted([]string{"owner"}))

	// impossible 依赖无法通过排除覆盖，耗尽要求已检查覆盖全部依赖
	assert.False(t, s.Exhausted([]string{"owner", "onlyOwner"}))
}

func TestSelectorExhaustedWithoutImpossible(t *testing.T) {
	c := BuildCatalog(&parser.PreprocessResult{
		Variables: map[string]parser.EntryInfo{
			"a": {ManipulationDifficulty: "easy"},
			"b": {ManipulationDifficulty: "medium"},
		},
		Dependencies: map[string]parser.EntryInfo{
			"f()": {ManipulationDifficulty: "easy"},
		},
	})
	s := NewSelector(c)

	s.NextRound(nil, nil) // a + f()
	assert.False(t, s.Exhausted(nil))

	s.NextRound(nil, nil) // b
	assert.True(t, s.Exhausted(nil))

	// 排除也参与覆盖
	s2 := NewSelector(c)
	s2.NextRound([]string{"a"}, nil) // b + f()
	require.Equal(t, []string{"b"}, s2.ExaminedVariables())
	assert.True(t, s2.Exhausted([]string{"a"}))
}

func TestSelectorEmptyCatalog(t *testing.T) {
	s := NewSelector(BuildCatalog(&parser.PreprocessResult{
		Variables:    map[string]parser.EntryInfo{},
		Dependencies: map[string]parser.EntryInfo{},
	}))

	r := s.NextRound(nil, nil)
	assert.Empty(t, r.Variables)
	assert.Empty(t, r.Dependencies)
	assert.True(t, s.Exhausted(nil))
}

func TestCatalogUnknownDifficultyNeverSelected(t *testing.T) {
	c := BuildCatalog(&parser.PreprocessResult{
		Variables: map[string]parser.EntryInfo{
			"weird": {ManipulationDifficulty: "banana"},
		},
	})

	record, ok := c.Variable("weird")
	require.True(t, ok)
	assert.Equal(t, parser.DifficultyImpossible, record.Difficulty)

	s := NewSelector(c)
	r := s.NextRound(nil, nil)
	assert.Empty(t, r.NewVariable)
}
