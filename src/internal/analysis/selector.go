package analysis

import "github.com/admi-n/solidity-Prospector/src/internal/ai/parser"

// Selector 根据目录、案例记忆和迭代进度决定每轮要检查的候选集。
// 工作集单调累积：每轮最多新增一个变量和一个依赖，后续轮次总是分析
// 此前所有轮次标识符的超集（被排除者除外）。
type Selector struct {
	catalog *Catalog

	// 已检查过的标识符（累积，不会遗忘）
	examinedVars map[string]bool
	examinedDeps map[string]bool

	// 保持加入顺序，供候选集输出
	varOrder []string
	depOrder []string
}

// RoundSelection 一轮的候选集（累积工作集，非增量）
type RoundSelection struct {
	Variables     []string
	Dependencies  []string
	NewVariable   string // 本轮新增的变量，空表示没有新增
	NewDependency string // 本轮新增的依赖，空表示没有新增
}

// NewSelector 创建候选选择器
func NewSelector(catalog *Catalog) *Selector {
	return &Selector{
		catalog:      catalog,
		examinedVars: map[string]bool{},
		examinedDeps: map[string]bool{},
	}
}

// NextRound 产生本轮候选集。
//  1. 以此前所有轮次检查过的标识符为基础；
//  2. 优先从显式包含列表（按加入顺序）补充一个未检查且未排除的变量；
//  3. 否则按难度升序 {easy, medium, hard} 扫描，取首个未检查且未排除的
//     变量（impossible 永不入选）；可能合法地一个都加不进来；
//  4. 依赖独立执行同样的升序扫描，每轮最多新增一个（依赖不受案例记忆
//     的排除/包含影响）；
//  5. 返回的工作集中剔除当前已被排除的标识符。
func (s *Selector) NextRound(excluded, included []string) RoundSelection {
	excludedSet := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		excludedSet[name] = true
	}

	sel := RoundSelection{}

	// 先尝试显式包含列表
	for _, name := range included {
		if s.examinedVars[name] || excludedSet[name] {
			continue
		}
		// 只接受目录中存在的标识符，批判步骤可能给出无效名字
		if _, ok := s.catalog.Variable(name); !ok {
			continue
		}
		sel.NewVariable = name
		break
	}

	// 再按难度升序扫描，impossible 永不入选
	if sel.NewVariable == "" {
		for rank := difficultyRank(parser.DifficultyEasy); rank <= difficultyRank(parser.DifficultyHard); rank++ {
			for _, name := range s.catalog.VariableNames() {
				record, _ := s.catalog.Variable(name)
				if difficultyRank(record.Difficulty) != rank {
					continue
				}
				if s.examinedVars[name] || excludedSet[name] {
					continue
				}
				sel.NewVariable = name
				break
			}
			if sel.NewVariable != "" {
				break
			}
		}
	}

	if sel.NewVariable != "" {
		s.examinedVars[sel.NewVariable] = true
		s.varOrder = append(s.varOrder, sel.NewVariable)
	}

	// 依赖：独立的升序扫描，无排除/包含语义
	for rank := difficultyRank(parser.DifficultyEasy); rank <= difficultyRank(parser.DifficultyHard); rank++ {
		for _, name := range s.catalog.DependencyNames() {
			record, _ := s.catalog.Dependency(name)
			if difficultyRank(record.Difficulty) != rank {
				continue
			}
			if s.examinedDeps[name] {
				continue
			}
			sel.NewDependency = name
			break
		}
		if sel.NewDependency != "" {
			break
		}
	}

	if sel.NewDependency != "" {
		s.examinedDeps[sel.NewDependency] = true
		s.depOrder = append(s.depOrder, sel.NewDependency)
	}

	// 返回累积工作集，剔除已排除的标识符
	for _, name := range s.varOrder {
		if !excludedSet[name] {
			sel.Variables = append(sel.Variables, name)
		}
	}
	sel.Dependencies = append(sel.Dependencies, s.depOrder...)

	return sel
}

// ExaminedVariables 返回所有检查过的变量（含后来被排除的），供进度统计
func (s *Selector) ExaminedVariables() []string {
	return s.varOrder
}

// ExaminedDependencies 返回所有检查过的依赖
func (s *Selector) ExaminedDependencies() []string {
	return s.depOrder
}

// Exhausted 耗尽检查：(已检查 ∪ 已排除) 覆盖全部变量，且已检查覆盖全部依赖
func (s *Selector) Exhausted(excluded []string) bool {
	excludedSet := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		excludedSet[name] = true
	}

	for _, name := range s.catalog.VariableNames() {
		if !s.examinedVars[name] && !excludedSet[name] {
			return false
		}
	}
	for _, name := range s.catalog.DependencyNames() {
		if !s.examinedDeps[name] {
			return false
		}
	}
	return true
}
