package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/admi-n/solidity-Prospector/src/internal/ai/parser"
	"github.com/admi-n/solidity-Prospector/src/internal/memory"
)

// Assumptions 注入各阶段 prompt 的分析假设，可在 settings.yaml 中覆盖
type Assumptions struct {
	PrivilegedVars        string `yaml:"privileged_vars"`
	UserControlledVars    string `yaml:"user_controlled_vars"`
	ManipulationHierarchy string `yaml:"manipulation_hierarchy"`
	StrictEvaluation      string `yaml:"strict_evaluation"`
	FalsePositiveHandling string `yaml:"false_positive_handling"`
}

// WithDefaults 为空字段填充默认假设
func (a Assumptions) WithDefaults() Assumptions {
	if a.PrivilegedVars == "" {
		a.PrivilegedVars = "Variables or external dependencies controlled by privileged accounts are impossible to manipulate"
	}
	if a.UserControlledVars == "" {
		a.UserControlledVars = "User-controllable variables should be considered easy to manipulate"
	}
	if a.ManipulationHierarchy == "" {
		a.ManipulationHierarchy = "Variables should be categorized by manipulation difficulty (easy, medium, hard, impossible)"
	}
	if a.StrictEvaluation == "" {
		a.StrictEvaluation = "Strictly verify whether a variable is truly manipulable to achieve the goal"
	}
	if a.FalsePositiveHandling == "" {
		a.FalsePositiveHandling = "Identify if a manipulation is a false positive and should be excluded"
	}
	return a
}

// Builder 构建四个阶段的 prompt，模板可被 strategy/prompts/<stage>.tmpl 覆盖
type Builder struct {
	assumptions Assumptions
	templateDir string
}

// NewBuilder 创建 prompt 构建器。templateDir 为空时使用内置默认模板。
func NewBuilder(assumptions Assumptions, templateDir string) *Builder {
	return &Builder{
		assumptions: assumptions.WithDefaults(),
		templateDir: templateDir,
	}
}

// BuildPrompt 使用模板和变量构建最终的 prompt
func BuildPrompt(templateContent string, variables map[string]string) string {
	tmpl, err := template.New("prompt").Parse(templateContent)
	if err != nil {
		return fmt.Sprintf("模板解析失败: %v\n原始模板:\n%s", err, templateContent)
	}

	var result strings.Builder
	if err := tmpl.Execute(&result, variables); err != nil {
		return fmt.Sprintf("模板执行失败: %v\n原始模板:\n%s", err, templateContent)
	}

	return result.String()
}

func (b *Builder) loadOrDefault(stage, fallback string) string {
	if b.templateDir == "" {
		return fallback
	}
	content, err := LoadTemplate(b.templateDir, stage)
	if err != nil {
		return fallback
	}
	return content
}

// jsonOrNone 序列化为缩进 JSON，空值或序列化失败时返回 "None"
func jsonOrNone(v interface{}) string {
	if v == nil {
		return "None"
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "None"
	}
	s := string(data)
	if s == "{}" || s == "[]" || s == "null" {
		return "None"
	}
	return s
}

// Preprocess 构建预处理阶段 prompt：识别代币流、变量和依赖，并按操纵难度分级
func (b *Builder) Preprocess(code, targetDescription string) string {
	return BuildPrompt(b.loadOrDefault("preprocess", defaultPreprocessTemplate), map[string]string{
		"TargetDescription":     targetDescription,
		"Code":                  code,
		"PrivilegedVars":        b.assumptions.PrivilegedVars,
		"UserControlledVars":    b.assumptions.UserControlledVars,
		"ManipulationHierarchy": b.assumptions.ManipulationHierarchy,
	})
}

// Path 构建路径生成阶段 prompt：在本轮候选集内找最有希望的代码路径
func (b *Builder) Path(code, flowDescription, roundContext string,
	vars, deps map[string]parser.EntryInfo, findings []memory.Finding) string {

	return BuildPrompt(b.loadOrDefault("path", defaultPathTemplate), map[string]string{
		"Code":             code,
		"FlowDescription":  flowDescription,
		"RoundContext":     roundContext,
		"Variables":        jsonOrNone(vars),
		"Dependencies":     jsonOrNone(deps),
		"PreviousFindings": jsonOrNone(findings),
	})
}

// Action 构建攻击假设阶段 prompt：验证候选路径是否可被利用并产出利用叙事
func (b *Builder) Action(goal string, path *parser.PathResult,
	assumptions map[string]string, patterns map[string]interface{}) string {

	return BuildPrompt(b.loadOrDefault("action", defaultActionTemplate), map[string]string{
		"Goal":           goal,
		"CodePath":       path.CodePath,
		"AnalysisFocus":  path.AnalysisFocus,
		"Strategy":       path.ManipulationStrategy,
		"Assumptions":    jsonOrNone(assumptions),
		"AttackPatterns": jsonOrNone(patterns),
	})
}

// Reflection 构建批判评估阶段 prompt：严格检验假设并给出排除/包含建议
func (b *Builder) Reflection(code string, action *parser.ActionResult, goal string) string {
	actionJSON, err := json.Marshal(action)
	if err != nil {
		actionJSON = []byte("{}")
	}

	return BuildPrompt(b.loadOrDefault("reflection", defaultReflectionTemplate), map[string]string{
		"Goal":                  goal,
		"Code":                  code,
		"Finding":               string(actionJSON),
		"StrictEvaluation":      b.assumptions.StrictEvaluation,
		"FalsePositiveHandling": b.assumptions.FalsePositiveHandling,
		"PrivilegedVars":        b.assumptions.PrivilegedVars,
	})
}
