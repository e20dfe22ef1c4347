package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// 全局记忆中的模块名
const (
	ModuleLogicExtractor  = "logic_extractor"
	ModuleActionGenerator = "action_generator"
	ModuleReflection      = "reflection"
)

const caseMemoryFile = "case_memory.json"

// Meta 记录文档的创建/更新时间
type Meta struct {
	CreatedAt   string `json:"created_at,omitempty"`
	LastUpdated string `json:"last_updated"`
	Version     string `json:"version,omitempty"`
}

// ModuleKnowledge 单个模块的跨案例知识
type ModuleKnowledge struct {
	Assumptions        map[string]string      `json:"assumptions"`
	AttackPatterns     map[string]interface{} `json:"attack_patterns,omitempty"`
	FalsePositiveRules map[string]interface{} `json:"false_positive_rules,omitempty"`
}

// GlobalMemory 跨案例持久化知识：模块名 -> 假设/攻击模式。
// 由多个案例共享读取，只通过显式的"知识晋升"操作写入，单个案例运行不会重置它。
type GlobalMemory struct {
	Modules map[string]*ModuleKnowledge `json:"modules"`
	Meta    Meta                        `json:"meta"`
}

// Finding 一轮迭代的结论摘要，追加到案例记忆中
type Finding struct {
	Iteration            int      `json:"iteration"`
	Variables            []string `json:"variables"`
	Dependencies         []string `json:"dependencies"`
	VulnerabilityFound   bool     `json:"vulnerability_found"`
	Focus                string   `json:"focus,omitempty"`
	FailureReason        string   `json:"failure_reason,omitempty"`
	NewFocusAreas        string   `json:"new_focus_areas,omitempty"`
	AdditionalConditions string   `json:"additional_conditions,omitempty"`
}

// CaseMemory 单个分析案例的可变状态
type CaseMemory struct {
	ExcludedVariables []string               `json:"excluded_variables"`
	IncludedVariables []string               `json:"included_variables"`
	AnalysisTricks    map[string]interface{} `json:"analysis_tricks"`
	CodeContext       map[string]interface{} `json:"code_context"`
	PreviousFindings  []Finding              `json:"previous_findings"`
	Meta              Meta                   `json:"meta"`
}

// Manager 两级事实存储：进程级全局记忆 + 案例级临时记忆，各自独立持久化。
// 每个进程构造一次并显式注入，不使用隐藏单例。
type Manager struct {
	globalPath string
	caseDir    string
	log        *zap.Logger

	// 序列化全局记忆的读改写，避免多个案例并发晋升知识时互相覆盖
	globalMu sync.Mutex

	global  *GlobalMemory
	caseMem *CaseMemory
}

// NewManager 加载全局记忆并初始化案例记忆。
// 持久化文件缺失或损坏不致命：替换为空默认结构并记录警告。
func NewManager(globalPath, caseDir string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}

	m := &Manager{
		globalPath: globalPath,
		caseDir:    caseDir,
		log:        log,
	}
	m.global = m.loadGlobalMemory()
	m.caseMem = m.initCaseMemory()
	return m
}

func emptyGlobalMemory() *GlobalMemory {
	now := time.Now().Format(time.RFC3339)
	return &GlobalMemory{
		Modules: map[string]*ModuleKnowledge{
			ModuleLogicExtractor: {
				Assumptions:    map[string]string{},
				AttackPatterns: map[string]interface{}{},
			},
			ModuleActionGenerator: {
				Assumptions:    map[string]string{},
				AttackPatterns: map[string]interface{}{},
			},
			ModuleReflection: {
				Assumptions:        map[string]string{},
				FalsePositiveRules: map[string]interface{}{},
			},
		},
		Meta: Meta{LastUpdated: now, Version: "1.0"},
	}
}

func (m *Manager) loadGlobalMemory() *GlobalMemory {
	data, err := os.ReadFile(m.globalPath)
	if err != nil {
		m.log.Info("global memory file not found, using empty structure",
			zap.String("path", m.globalPath))
		return emptyGlobalMemory()
	}

	var global GlobalMemory
	if err := json.Unmarshal(data, &global); err != nil {
		m.log.Warn("error loading global memory file, using empty structure",
			zap.String("path", m.globalPath), zap.Error(err))
		return emptyGlobalMemory()
	}
	if global.Modules == nil {
		global.Modules = map[string]*ModuleKnowledge{}
	}
	return &global
}

func (m *Manager) initCaseMemory() *CaseMemory {
	now := time.Now().Format(time.RFC3339)
	caseMem := &CaseMemory{
		ExcludedVariables: []string{},
		IncludedVariables: []string{},
		AnalysisTricks:    map[string]interface{}{},
		CodeContext:       map[string]interface{}{},
		PreviousFindings:  []Finding{},
		Meta:              Meta{CreatedAt: now, LastUpdated: now},
	}

	if m.caseDir != "" {
		m.saveCaseMemory(caseMem)
	}

	return caseMem
}

// LoadCaseMemory 从指定案例目录恢复案例记忆（续跑场景）。
// 文件缺失或损坏时初始化新的案例记忆。
func (m *Manager) LoadCaseMemory(caseDir string) *CaseMemory {
	m.caseDir = caseDir
	path := filepath.Join(caseDir, caseMemoryFile)

	data, err := os.ReadFile(path)
	if err != nil {
		m.log.Info("no existing case memory found, initializing new case memory",
			zap.String("path", path))
		m.caseMem = m.initCaseMemory()
		return m.caseMem
	}

	var caseMem CaseMemory
	if err := json.Unmarshal(data, &caseMem); err != nil {
		m.log.Warn("error loading case memory, initializing new case memory",
			zap.String("path", path), zap.Error(err))
		m.caseMem = m.initCaseMemory()
		return m.caseMem
	}

	if caseMem.AnalysisTricks == nil {
		caseMem.AnalysisTricks = map[string]interface{}{}
	}
	if caseMem.CodeContext == nil {
		caseMem.CodeContext = map[string]interface{}{}
	}

	m.caseMem = &caseMem
	m.log.Info("loaded case memory", zap.String("path", path))
	return m.caseMem
}

// saveCaseMemory 立即持久化案例记忆，崩溃时最多丢失进行中的一轮
func (m *Manager) saveCaseMemory(caseMem *CaseMemory) {
	if m.caseDir == "" {
		m.log.Warn("case output directory not specified, cannot save case memory")
		return
	}

	caseMem.Meta.LastUpdated = time.Now().Format(time.RFC3339)

	path := filepath.Join(m.caseDir, caseMemoryFile)
	if err := writeJSONAtomic(path, caseMem); err != nil {
		m.log.Warn("failed to save case memory", zap.String("path", path), zap.Error(err))
		return
	}
}

// saveGlobalMemory 持久化全局记忆，仅在显式更新全局知识时调用。
// 调用方必须已持有 globalMu。
func (m *Manager) saveGlobalMemory() {
	m.global.Meta.LastUpdated = time.Now().Format(time.RFC3339)

	if err := writeJSONAtomic(m.globalPath, m.global); err != nil {
		m.log.Warn("failed to save global memory",
			zap.String("path", m.globalPath), zap.Error(err))
		return
	}
	m.log.Info("global memory saved", zap.String("path", m.globalPath))
}

// writeJSONAtomic 写临时文件后 rename，避免写一半的 JSON 落盘
func writeJSONAtomic(path string, v interface{}) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// GetGlobalAssumptions 返回指定模块的全局假设，模块未知时返回空 map（仅告警）
func (m *Manager) GetGlobalAssumptions(moduleName string) map[string]string {
	m.globalMu.Lock()
	defer m.globalMu.Unlock()

	if mod, ok := m.global.Modules[moduleName]; ok && mod.Assumptions != nil {
		return mod.Assumptions
	}
	m.log.Warn("no global assumptions found for module", zap.String("module", moduleName))
	return map[string]string{}
}

// GetAttackPatterns 返回指定模块的攻击模式，reflection 模块回退到误报规则
func (m *Manager) GetAttackPatterns(moduleName string) map[string]interface{} {
	m.globalMu.Lock()
	defer m.globalMu.Unlock()

	if mod, ok := m.global.Modules[moduleName]; ok {
		if mod.AttackPatterns != nil {
			return mod.AttackPatterns
		}
		if mod.FalsePositiveRules != nil {
			return mod.FalsePositiveRules
		}
	}
	m.log.Warn("no attack patterns or false positive rules found for module",
		zap.String("module", moduleName))
	return map[string]interface{}{}
}

// GetExcludedVariables 返回案例记忆中被排除的变量列表
func (m *Manager) GetExcludedVariables() []string {
	return m.caseMem.ExcludedVariables
}

// GetIncludedVariables 返回案例记忆中被显式要求分析的变量列表（按加入顺序）
func (m *Manager) GetIncludedVariables() []string {
	return m.caseMem.IncludedVariables
}

// GetAnalysisTricks 返回案例记忆中的分析技巧
func (m *Manager) GetAnalysisTricks() map[string]interface{} {
	return m.caseMem.AnalysisTricks
}

// GetPreviousFindings 返回案例记忆中的历史结论（按迭代顺序）
func (m *Manager) GetPreviousFindings() []Finding {
	return m.caseMem.PreviousFindings
}

// IsExcluded 判断变量是否已被排除
func (m *Manager) IsExcluded(name string) bool {
	for _, v := range m.caseMem.ExcludedVariables {
		if v == name {
			return true
		}
	}
	return false
}

// AddExcludedVariable 幂等加入排除集并立即持久化
func (m *Manager) AddExcludedVariable(name string) {
	if name == "" || m.IsExcluded(name) {
		return
	}
	m.caseMem.ExcludedVariables = append(m.caseMem.ExcludedVariables, name)
	m.saveCaseMemory(m.caseMem)
	m.log.Info("added variable to excluded list", zap.String("variable", name))
}

// AddIncludedVariable 幂等加入包含集并立即持久化
func (m *Manager) AddIncludedVariable(name string) {
	if name == "" {
		return
	}
	for _, v := range m.caseMem.IncludedVariables {
		if v == name {
			return
		}
	}
	m.caseMem.IncludedVariables = append(m.caseMem.IncludedVariables, name)
	m.saveCaseMemory(m.caseMem)
	m.log.Info("added variable to included list", zap.String("variable", name))
}

// AddAnalysisTrick 记录一条分析技巧
func (m *Manager) AddAnalysisTrick(name string, data interface{}) {
	m.caseMem.AnalysisTricks[name] = data
	m.saveCaseMemory(m.caseMem)
	m.log.Info("added analysis trick", zap.String("trick", name))
}

// AddPreviousFinding 追加一条迭代结论并立即持久化
func (m *Manager) AddPreviousFinding(finding Finding) {
	m.caseMem.PreviousFindings = append(m.caseMem.PreviousFindings, finding)
	m.saveCaseMemory(m.caseMem)
	m.log.Info("added finding to previous findings list", zap.Int("iteration", finding.Iteration))
}

// UpdateCodeContext 替换案例记忆中的代码上下文
func (m *Manager) UpdateCodeContext(context map[string]interface{}) {
	m.caseMem.CodeContext = context
	m.saveCaseMemory(m.caseMem)
}

// GetCodeContext 返回案例记忆中的代码上下文
func (m *Manager) GetCodeContext() map[string]interface{} {
	return m.caseMem.CodeContext
}

// UpdateGlobalAssumption 更新全局假设并持久化。
// 这是"案例学习晋升为全局知识"流程的一部分，不由常规迭代循环调用。
func (m *Manager) UpdateGlobalAssumption(moduleName, name, value string) {
	m.globalMu.Lock()
	defer m.globalMu.Unlock()

	mod, ok := m.global.Modules[moduleName]
	if !ok {
		m.log.Warn("module not found in global memory", zap.String("module", moduleName))
		return
	}
	if mod.Assumptions == nil {
		mod.Assumptions = map[string]string{}
	}
	mod.Assumptions[name] = value
	m.saveGlobalMemory()
	m.log.Info("updated global assumption",
		zap.String("module", moduleName), zap.String("assumption", name))
}

// AddAttackPattern 向全局记忆添加攻击模式并持久化（同样仅限知识晋升流程）
func (m *Manager) AddAttackPattern(moduleName, name string, data interface{}) {
	m.globalMu.Lock()
	defer m.globalMu.Unlock()

	mod, ok := m.global.Modules[moduleName]
	if !ok {
		m.log.Warn("module not found in global memory", zap.String("module", moduleName))
		return
	}
	if mod.AttackPatterns == nil {
		mod.AttackPatterns = map[string]interface{}{}
	}
	mod.AttackPatterns[name] = data
	m.saveGlobalMemory()
	m.log.Info("added attack pattern",
		zap.String("module", moduleName), zap.String("pattern", name))
}

// AddFalsePositiveRule 向 reflection 模块添加误报规则并持久化
func (m *Manager) AddFalsePositiveRule(name string, data interface{}) {
	m.globalMu.Lock()
	defer m.globalMu.Unlock()

	mod, ok := m.global.Modules[ModuleReflection]
	if !ok {
		m.log.Warn("reflection module not found in global memory")
		return
	}
	if mod.FalsePositiveRules == nil {
		mod.FalsePositiveRules = map[string]interface{}{}
	}
	mod.FalsePositiveRules[name] = data
	m.saveGlobalMemory()
	m.log.Info("added false positive rule", zap.String("rule", name))
}

// CaseMemorySnapshot 返回案例记忆的完整快照（深拷贝，供审计/调试导出）
func (m *Manager) CaseMemorySnapshot() CaseMemory {
	snapshot := CaseMemory{
		ExcludedVariables: append([]string{}, m.caseMem.ExcludedVariables...),
		IncludedVariables: append([]string{}, m.caseMem.IncludedVariables...),
		AnalysisTricks:    map[string]interface{}{},
		CodeContext:       map[string]interface{}{},
		PreviousFindings:  append([]Finding{}, m.caseMem.PreviousFindings...),
		Meta:              m.caseMem.Meta,
	}
	for k, v := range m.caseMem.AnalysisTricks {
		snapshot.AnalysisTricks[k] = v
	}
	for k, v := range m.caseMem.CodeContext {
		snapshot.CodeContext[k] = v
	}
	return snapshot
}
