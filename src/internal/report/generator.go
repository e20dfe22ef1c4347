package report

import (
	"fmt"
	"time"

	"github.com/admi-n/solidity-Prospector/src/internal/analysis"
)

// CaseReport 表示单个案例的分析报告
type CaseReport struct {
	CaseName        string
	ContractAddress string
	AIProvider      string
	Goal            string
	AnalysisTime    time.Time
	Final           *analysis.FinalReport
}

// Generator 报告生成器接口
type Generator interface {
	Generate(report *CaseReport) (string, error)
}

// MarkdownGenerator markdown格式报告生成器
type MarkdownGenerator struct{}

// NewMarkdownGenerator 创建markdown报告生成器
func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{}
}

// Generate 生成markdown格式报告
func (g *MarkdownGenerator) Generate(report *CaseReport) (string, error) {
	if report.Final == nil {
		return "", fmt.Errorf("nil final report")
	}

	final := report.Final
	var result string

	// 报告头部
	result += fmt.Sprintf("# Solidity Prospector 分析报告\n\n")
	result += fmt.Sprintf("**案例**: %s\n", report.CaseName)
	if report.ContractAddress != "" {
		result += fmt.Sprintf("**合约地址**: %s\n", report.ContractAddress)
	}
	result += fmt.Sprintf("**AI 提供商**: %s\n", report.AIProvider)
	result += fmt.Sprintf("**分析目标**: %s\n", report.Goal)
	result += fmt.Sprintf("**分析时间**: %s\n\n", report.AnalysisTime.Format("2006-01-02 15:04:05"))

	// 分析统计
	result += fmt.Sprintf("## 分析统计\n\n")
	result += fmt.Sprintf("- **最终状态**: %s %s\n", statusIcon(final.Status), final.Status)
	result += fmt.Sprintf("- **迭代轮数**: %d\n", final.IterationsPerformed)
	result += fmt.Sprintf("- **变量分析进度**: %d/%d (排除 %d)\n",
		final.AnalysisSummary.AnalyzedVariables,
		final.AnalysisSummary.TotalVariables,
		final.AnalysisSummary.ExcludedVariables)
	result += fmt.Sprintf("- **依赖分析进度**: %d/%d\n",
		final.AnalysisSummary.AnalyzedDependencies,
		final.AnalysisSummary.TotalDependencies)
	result += fmt.Sprintf("- **完成度**: %s\n\n", final.AnalysisSummary.AnalysisCompletion)

	// 最佳发现
	if final.Status == analysis.StatusVulnerabilityFound && final.BestFinding != nil && final.BestFinding.Action != nil {
		best := final.BestFinding
		result += fmt.Sprintf("## 漏洞详情\n\n")
		result += fmt.Sprintf("**类型**: %s\n", best.Action.VulnerabilityType)
		result += fmt.Sprintf("**置信度**: %s %s\n", confidenceIcon(best.Action.Confidence), best.Action.Confidence)
		result += fmt.Sprintf("**发现于迭代**: %d\n\n", best.Iteration+1)

		result += fmt.Sprintf("### 攻击场景\n\n%s\n\n", best.Action.AttackScenario)
		result += fmt.Sprintf("### 获利机制\n\n%s\n\n", best.Action.ProfitMechanism)

		if best.Action.ExploitCode != "" {
			result += fmt.Sprintf("### 利用代码/交易序列\n\n```\n%s\n```\n\n", best.Action.ExploitCode)
		}
		if best.Action.AttackPrerequisites != "" {
			result += fmt.Sprintf("### 攻击前提\n\n%s\n\n", best.Action.AttackPrerequisites)
		}
		if best.Reflection != nil && best.Reflection.Evaluation != "" {
			result += fmt.Sprintf("### 复核评估\n\n%s\n\n", best.Reflection.Evaluation)
		}
	} else {
		result += fmt.Sprintf("## 结论\n\n未发现可利用的漏洞。\n\n")
	}

	// 迭代历史
	result += fmt.Sprintf("## 迭代历史\n\n")
	for i := range final.AllFindings {
		r := &final.AllFindings[i]
		result += fmt.Sprintf("### 迭代 %d\n\n", r.Iteration+1)
		result += fmt.Sprintf("- **变量**: %v\n", r.Variables)
		result += fmt.Sprintf("- **依赖**: %v\n", r.Dependencies)

		if r.Path != nil && r.Path.AnalysisFocus != "" {
			result += fmt.Sprintf("- **分析焦点**: %s\n", r.Path.AnalysisFocus)
		}
		if r.Action != nil {
			if r.Action.VulnerabilityFound {
				result += fmt.Sprintf("- **结果**: 疑似漏洞 (%s, 置信度 %s)\n",
					r.Action.VulnerabilityType, r.Action.Confidence)
			} else {
				result += fmt.Sprintf("- **结果**: 未发现漏洞\n")
			}
		}
		if r.Reflection != nil {
			result += fmt.Sprintf("- **复核通过**: %v\n", r.Reflection.GoalMet)
			if !r.Reflection.GoalMet && r.Reflection.CriticalFlaws != "" {
				result += fmt.Sprintf("- **否决原因**: %s\n", r.Reflection.CriticalFlaws)
			}
		}
		result += "\n"
	}

	return result, nil
}

// statusIcon 获取最终状态对应的图标
func statusIcon(status string) string {
	switch status {
	case analysis.StatusVulnerabilityFound:
		return "🔴"
	case analysis.StatusAnalysisComplete:
		return "🟢"
	default:
		return "🟡"
	}
}

// confidenceIcon 获取置信度对应的图标
func confidenceIcon(confidence string) string {
	switch confidence {
	case "high":
		return "🔴"
	case "medium":
		return "🟠"
	case "low":
		return "🟡"
	default:
		return "⚪"
	}
}
