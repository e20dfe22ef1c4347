package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/admi-n/solidity-Prospector/src/internal/ai/parser"
	"github.com/admi-n/solidity-Prospector/src/internal/memory"
	"github.com/admi-n/solidity-Prospector/src/strategy/prompts"
)

// Completer 循环消费的唯一外部能力：同步的文本补全调用。
// 返回字符串不保证任何结构，超时/错误由实现方契约负责。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Config 分析器配置
type Config struct {
	MaxIterations int
	OutputDir     string // 案例输出目录，空表示不落盘中间产物
	Goal          string
	Target        string // 目标功能描述
}

// Analyzer 迭代分析器：预处理 -> 逐轮候选选择/假设/批判/记忆更新 -> 最终报告。
// 严格单线程顺序执行，一轮内无并发展开。
type Analyzer struct {
	client  Completer
	parser  *parser.Parser
	memory  *memory.Manager
	prompts *prompts.Builder
	log     *zap.Logger
	cfg     Config

	catalog  *Catalog
	selector *Selector
	history  []IterationResult
}

// NewAnalyzer 创建分析器
func NewAnalyzer(client Completer, mem *memory.Manager, builder *prompts.Builder, log *zap.Logger, cfg Config) *Analyzer {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{
		client:  client,
		parser:  parser.NewParser(),
		memory:  mem,
		prompts: builder,
		log:     log,
		cfg:     cfg,
	}
}

// complete 调用补全服务。调用失败等同于不可解析的响应：
// 返回错误文本作为"原始响应"，由各阶段的降级记录兜底，绝不让循环崩溃。
func (a *Analyzer) complete(ctx context.Context, prompt string) (string, bool) {
	response, err := a.client.Complete(ctx, prompt)
	if err != nil {
		a.log.Warn("completion call failed, treating as unparseable response", zap.Error(err))
		return fmt.Sprintf("completion error: %v", err), false
	}
	return response, true
}

// preprocess 预处理恰好执行一次，产出目录。
// 拿不到可解析的目录时产出空目录（退化但非致命）。
func (a *Analyzer) preprocess(ctx context.Context, code string) *Catalog {
	prompt := a.prompts.Preprocess(code, a.cfg.Target)

	response, ok := a.complete(ctx, prompt)
	var result *parser.PreprocessResult
	if !ok {
		result = parser.FallbackPreprocessResult(response)
	} else {
		var err error
		result, err = a.parser.ParsePreprocess(response)
		if err != nil {
			a.log.Warn("preprocessing response unparseable, proceeding with empty catalog",
				zap.Error(err))
		}
	}

	a.saveArtifact(filepath.Join("preprocessing", "preprocessing_results.json"), result)

	return BuildCatalog(result)
}

// Analyze 对单个案例执行完整分析流程并返回最终报告。
// 最终报告总是会被构建，即使每一轮都解析失败。
// 取消的粒度是"不再开始下一轮"：上下文在轮边界检查，轮内不中断。
func (a *Analyzer) Analyze(ctx context.Context, code string) (*FinalReport, error) {
	a.catalog = a.preprocess(ctx, code)
	a.selector = NewSelector(a.catalog)

	a.log.Info("preprocessing completed",
		zap.Int("variables", a.catalog.VariableCount()),
		zap.Int("dependencies", a.catalog.DependencyCount()))

	for iteration := 0; iteration < a.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			a.log.Warn("context cancelled, not starting next round", zap.Int("iteration", iteration))
			return a.finalReport(StatusMaxIterations), err
		}

		result := a.runRound(ctx, code, iteration)
		a.history = append(a.history, result)

		a.saveArtifact(filepath.Join("iterations", fmt.Sprintf("iteration_%d", iteration+1),
			"combined_results.json"), result)

		// 终止检查，按固定顺序评估
		if result.Reflection != nil && result.Reflection.GoalMet {
			// 目标达成即终止：继续迭代不再产生价值，只会浪费调用
			a.log.Info("goal met, terminating", zap.Int("iteration", iteration))
			return a.finalReport(StatusVulnerabilityFound), nil
		}

		if a.selector.Exhausted(a.memory.GetExcludedVariables()) {
			a.log.Info("all variables and dependencies analyzed or excluded",
				zap.Int("iteration", iteration))
			return a.finalReport(StatusAnalysisComplete), nil
		}
	}

	a.log.Info("maximum iterations reached", zap.Int("max_iterations", a.cfg.MaxIterations))
	return a.finalReport(StatusMaxIterations), nil
}

// runRound 执行一轮：候选选择 -> 路径 -> 假设 -> 批判 -> 记忆更新
func (a *Analyzer) runRound(ctx context.Context, code string, iteration int) IterationResult {
	sel := a.selector.NextRound(a.memory.GetExcludedVariables(), a.memory.GetIncludedVariables())

	a.log.Info("round candidates selected",
		zap.Int("iteration", iteration),
		zap.Strings("variables", sel.Variables),
		zap.Strings("dependencies", sel.Dependencies),
		zap.String("new_variable", sel.NewVariable),
		zap.String("new_dependency", sel.NewDependency))

	// 路径生成
	roundContext := a.roundContext(sel, iteration)
	pathPrompt := a.prompts.Path(code, a.catalog.TokenFlowDescription, roundContext,
		a.catalog.VariableEntries(sel.Variables),
		a.catalog.DependencyEntries(sel.Dependencies),
		a.memory.GetPreviousFindings())

	pathResult := a.runPathStage(ctx, pathPrompt)

	// 攻击假设
	actionPrompt := a.prompts.Action(a.cfg.Goal, pathResult,
		a.memory.GetGlobalAssumptions(memory.ModuleActionGenerator),
		a.memory.GetAttackPatterns(memory.ModuleActionGenerator))

	actionResult := a.runActionStage(ctx, actionPrompt)

	// 批判评估
	reflectionPrompt := a.prompts.Reflection(code, actionResult, a.cfg.Goal)
	reflectionResult := a.runReflectionStage(ctx, reflectionPrompt)

	// 记忆更新：排除优先于包含，重复加入为空操作
	excludeSet := make(map[string]bool, len(reflectionResult.VariablesToExclude))
	for _, name := range reflectionResult.VariablesToExclude {
		excludeSet[name] = true
		a.memory.AddExcludedVariable(name)
	}
	for _, name := range reflectionResult.VariablesToInclude {
		if excludeSet[name] {
			a.log.Warn("identifier listed in both to_exclude and to_include, exclusion wins",
				zap.String("variable", name))
			continue
		}
		a.memory.AddIncludedVariable(name)
	}

	finding := memory.Finding{
		Iteration:            iteration,
		Variables:            sel.Variables,
		Dependencies:         sel.Dependencies,
		VulnerabilityFound:   actionResult.VulnerabilityFound,
		Focus:                pathResult.AnalysisFocus,
		NewFocusAreas:        reflectionResult.NewFocusAreas,
		AdditionalConditions: reflectionResult.AdditionalConditions,
	}
	if !reflectionResult.GoalMet {
		finding.FailureReason = reflectionResult.CriticalFlaws
	}
	a.memory.AddPreviousFinding(finding)

	iterDir := filepath.Join("iterations", fmt.Sprintf("iteration_%d", iteration+1))
	a.saveArtifact(filepath.Join(iterDir, "path_analysis.json"), pathResult)
	a.saveArtifact(filepath.Join(iterDir, "action_result.json"), actionResult)
	a.saveArtifact(filepath.Join(iterDir, "reflection_result.json"), reflectionResult)

	return IterationResult{
		Iteration:    iteration,
		Variables:    sel.Variables,
		Dependencies: sel.Dependencies,
		Path:         pathResult,
		Action:       actionResult,
		Reflection:   reflectionResult,
		Progress:     a.progress(),
	}
}

func (a *Analyzer) runPathStage(ctx context.Context, prompt string) *parser.PathResult {
	response, ok := a.complete(ctx, prompt)
	if !ok {
		return parser.FallbackPathResult(response)
	}
	result, err := a.parser.ParsePath(response)
	if err != nil {
		a.log.Warn("path response unparseable, using fallback record", zap.Error(err))
	}
	return result
}

func (a *Analyzer) runActionStage(ctx context.Context, prompt string) *parser.ActionResult {
	response, ok := a.complete(ctx, prompt)
	if !ok {
		return parser.FallbackActionResult(response)
	}
	result, err := a.parser.ParseAction(response)
	if err != nil {
		a.log.Warn("action response unparseable, using fallback record", zap.Error(err))
	}
	return result
}

func (a *Analyzer) runReflectionStage(ctx context.Context, prompt string) *parser.ReflectionResult {
	response, ok := a.complete(ctx, prompt)
	if !ok {
		return parser.FallbackReflectionResult(response)
	}
	result, err := a.parser.ParseReflection(response)
	if err != nil {
		a.log.Warn("reflection response unparseable, using fallback record", zap.Error(err))
	}
	return result
}

// roundContext 描述本轮分析上下文，提示模型关注新增的候选
func (a *Analyzer) roundContext(sel RoundSelection, iteration int) string {
	switch {
	case sel.NewVariable != "" && sel.NewDependency != "":
		return fmt.Sprintf("Iteration %d: analyze the cumulative candidate set; newly added variable %q and dependency %q deserve particular attention.",
			iteration+1, sel.NewVariable, sel.NewDependency)
	case sel.NewVariable != "":
		return fmt.Sprintf("Iteration %d: analyze the cumulative candidate set; newly added variable %q deserves particular attention.",
			iteration+1, sel.NewVariable)
	case sel.NewDependency != "":
		return fmt.Sprintf("Iteration %d: analyze the cumulative candidate set; newly added dependency %q deserves particular attention.",
			iteration+1, sel.NewDependency)
	default:
		return fmt.Sprintf("Iteration %d: no new candidates available; analyze combinations of the existing candidate set.",
			iteration+1)
	}
}

// progress 计算当前进度计数，维持 analyzed ∪ excluded ∪ remaining = all
func (a *Analyzer) progress() Progress {
	excluded := a.memory.GetExcludedVariables()
	excludedSet := make(map[string]bool, len(excluded))
	excludedInCatalog := 0
	for _, name := range excluded {
		excludedSet[name] = true
		if _, ok := a.catalog.Variable(name); ok {
			excludedInCatalog++
		}
	}

	analyzed := make(map[string]bool)
	for _, name := range a.selector.ExaminedVariables() {
		analyzed[name] = true
	}

	remainingVars := 0
	for _, name := range a.catalog.VariableNames() {
		if !analyzed[name] && !excludedSet[name] {
			remainingVars++
		}
	}

	analyzedDeps := len(a.selector.ExaminedDependencies())

	return Progress{
		TotalVariables:        a.catalog.VariableCount(),
		AnalyzedVariables:     len(a.selector.ExaminedVariables()),
		ExcludedVariables:     excludedInCatalog,
		VariablesRemaining:    remainingVars,
		TotalDependencies:     a.catalog.DependencyCount(),
		AnalyzedDependencies:  analyzedDeps,
		DependenciesRemaining: a.catalog.DependencyCount() - analyzedDeps,
	}
}

func (a *Analyzer) finalReport(status string) *FinalReport {
	return buildFinalReport(status, a.history, a.catalog, a.selector, a.memory.GetExcludedVariables())
}

// History 返回迭代历史（追加式审计记录）
func (a *Analyzer) History() []IterationResult {
	return a.history
}

// saveArtifact 将中间产物写入案例目录，写失败仅告警
func (a *Analyzer) saveArtifact(relPath string, v interface{}) {
	if a.cfg.OutputDir == "" {
		return
	}
	path := filepath.Join(a.cfg.OutputDir, relPath)
	if err := writeJSON(path, v); err != nil {
		a.log.Warn("failed to save artifact", zap.String("path", path), zap.Error(err))
	}
}

// writeJSON JSON 落盘辅助
func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
