package analysis

import (
	"sort"

	"github.com/admi-n/solidity-Prospector/src/internal/ai/parser"
)

// Record 目录中的一条变量/依赖记录。预处理阶段构建后不再修改，
// 排除/包含状态由案例记忆在外部维护。
type Record struct {
	Identifier         string `json:"identifier"`
	Kind               string `json:"kind"` // state/local 或 function/modifier/contract
	Description        string `json:"description"`
	Difficulty         string `json:"difficulty"`
	ManipulationMethod string `json:"manipulation_method"`
	Impact             string `json:"impact"`
}

// Catalog 每个案例构建一次的变量/依赖目录，之后只读
type Catalog struct {
	TokenFlowDescription string

	variables    map[string]Record
	dependencies map[string]Record

	// 确定性的扫描顺序（JSON map 无序，构建时按标识符排序固定下来）
	varOrder []string
	depOrder []string
}

// difficultyRank 难度序数，未知难度归为 impossible（永不被选中）
func difficultyRank(difficulty string) int {
	switch difficulty {
	case parser.DifficultyEasy:
		return 0
	case parser.DifficultyMedium:
		return 1
	case parser.DifficultyHard:
		return 2
	default:
		return 3
	}
}

func normalizeDifficulty(difficulty string) string {
	switch difficulty {
	case parser.DifficultyEasy, parser.DifficultyMedium, parser.DifficultyHard, parser.DifficultyImpossible:
		return difficulty
	default:
		return parser.DifficultyImpossible
	}
}

// BuildCatalog 从预处理结果构建目录
func BuildCatalog(pre *parser.PreprocessResult) *Catalog {
	c := &Catalog{
		TokenFlowDescription: pre.TokenFlowDescription,
		variables:            make(map[string]Record, len(pre.Variables)),
		dependencies:         make(map[string]Record, len(pre.Dependencies)),
	}

	for name, info := range pre.Variables {
		c.variables[name] = Record{
			Identifier:         name,
			Kind:               info.Type,
			Description:        info.Description,
			Difficulty:         normalizeDifficulty(info.ManipulationDifficulty),
			ManipulationMethod: info.ManipulationMethod,
			Impact:             info.ImpactOnTokenFlow,
		}
		c.varOrder = append(c.varOrder, name)
	}
	for name, info := range pre.Dependencies {
		c.dependencies[name] = Record{
			Identifier:         name,
			Kind:               info.Type,
			Description:        info.Description,
			Difficulty:         normalizeDifficulty(info.ManipulationDifficulty),
			ManipulationMethod: info.ManipulationMethod,
			Impact:             info.ImpactOnTokenFlow,
		}
		c.depOrder = append(c.depOrder, name)
	}

	sort.Strings(c.varOrder)
	sort.Strings(c.depOrder)

	return c
}

// Variable 查询变量记录
func (c *Catalog) Variable(name string) (Record, bool) {
	r, ok := c.variables[name]
	return r, ok
}

// Dependency 查询依赖记录
func (c *Catalog) Dependency(name string) (Record, bool) {
	r, ok := c.dependencies[name]
	return r, ok
}

// VariableNames 按扫描顺序返回全部变量标识符
func (c *Catalog) VariableNames() []string {
	return c.varOrder
}

// DependencyNames 按扫描顺序返回全部依赖标识符
func (c *Catalog) DependencyNames() []string {
	return c.depOrder
}

// VariableCount 变量总数
func (c *Catalog) VariableCount() int {
	return len(c.variables)
}

// DependencyCount 依赖总数
func (c *Catalog) DependencyCount() int {
	return len(c.dependencies)
}

// VariableEntries 返回指定变量的 EntryInfo 子集，用于填充 prompt
func (c *Catalog) VariableEntries(names []string) map[string]parser.EntryInfo {
	out := make(map[string]parser.EntryInfo, len(names))
	for _, name := range names {
		if r, ok := c.variables[name]; ok {
			out[name] = recordToEntry(r)
		}
	}
	return out
}

// DependencyEntries 返回指定依赖的 EntryInfo 子集
func (c *Catalog) DependencyEntries(names []string) map[string]parser.EntryInfo {
	out := make(map[string]parser.EntryInfo, len(names))
	for _, name := range names {
		if r, ok := c.dependencies[name]; ok {
			out[name] = recordToEntry(r)
		}
	}
	return out
}

func recordToEntry(r Record) parser.EntryInfo {
	return parser.EntryInfo{
		Type:                   r.Kind,
		Description:            r.Description,
		ManipulationDifficulty: r.Difficulty,
		ManipulationMethod:     r.ManipulationMethod,
		ImpactOnTokenFlow:      r.Impact,
	}
}
