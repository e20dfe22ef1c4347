package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/admi-n/solidity-Prospector/src/internal/ai/parser"
)

// 最终报告状态
const (
	StatusVulnerabilityFound = "vulnerability_found"
	StatusAnalysisComplete   = "analysis_complete_no_vulnerability_found"
	StatusMaxIterations      = "max_iterations_reached_no_vulnerability_found"
)

// Progress 一轮结束时的进度计数。
// 不变式：analyzed ∪ excluded ∪ remaining = all（变量与依赖各自成立）
type Progress struct {
	TotalVariables        int `json:"total_variables"`
	AnalyzedVariables     int `json:"analyzed_variables"`
	ExcludedVariables     int `json:"excluded_variables"`
	VariablesRemaining    int `json:"variables_remaining"`
	TotalDependencies     int `json:"total_dependencies"`
	AnalyzedDependencies  int `json:"analyzed_dependencies"`
	DependenciesRemaining int `json:"dependencies_remaining"`
}

// IterationResult 一轮迭代的完整审计记录，追加后不再修改
type IterationResult struct {
	Iteration    int                      `json:"iteration"`
	Variables    []string                 `json:"variables"`
	Dependencies []string                 `json:"dependencies"`
	Path         *parser.PathResult       `json:"path"`
	Action       *parser.ActionResult     `json:"action"`
	Reflection   *parser.ReflectionResult `json:"reflection"`
	Progress     Progress                 `json:"analysis_progress"`
}

// Summary 最终报告的统计摘要
type Summary struct {
	TotalVariables       int    `json:"total_variables"`
	AnalyzedVariables    int    `json:"analyzed_variables"`
	ExcludedVariables    int    `json:"excluded_variables"`
	TotalDependencies    int    `json:"total_dependencies"`
	AnalyzedDependencies int    `json:"analyzed_dependencies"`
	AnalysisCompletion   string `json:"analysis_completion"`
}

// FinalReport 整个案例的最终裁决
type FinalReport struct {
	Status              string            `json:"status"`
	IterationsPerformed int               `json:"iterations_performed"`
	BestFinding         *IterationResult  `json:"best_finding,omitempty"`
	AllFindings         []IterationResult `json:"all_findings"`
	AnalysisSummary     Summary           `json:"analysis_summary"`
}

// selectBestFinding 在 vulnerability_found && goal_met 的轮次中取置信度最高者，
// 平局取最早的迭代（对有序列表做稳定 max）
func selectBestFinding(history []IterationResult) *IterationResult {
	var best *IterationResult
	bestScore := 0
	for i := range history {
		r := &history[i]
		if r.Action == nil || r.Reflection == nil {
			continue
		}
		if !r.Action.VulnerabilityFound || !r.Reflection.GoalMet {
			continue
		}
		score := parser.ConfidenceScore(r.Action.Confidence)
		if best == nil || score > bestScore {
			best = r
			bestScore = score
		}
	}
	return best
}

// buildFinalReport 汇总迭代历史为最终报告
func buildFinalReport(status string, history []IterationResult, catalog *Catalog, selector *Selector, excluded []string) *FinalReport {
	best := selectBestFinding(history)
	if best == nil {
		// 没有同时满足 vulnerability_found 和 goal_met 的轮次
		if status == StatusVulnerabilityFound && len(history) > 0 {
			// 目标达成但假设步骤未标记漏洞的退化情况：引用终止轮
			best = &history[len(history)-1]
		}
	}

	analyzedVars := len(selector.ExaminedVariables())
	analyzedDeps := len(selector.ExaminedDependencies())

	completion := "Incomplete"
	if selector.Exhausted(excluded) {
		completion = "Complete"
	}

	return &FinalReport{
		Status:              status,
		IterationsPerformed: len(history),
		BestFinding:         best,
		AllFindings:         history,
		AnalysisSummary: Summary{
			TotalVariables:       catalog.VariableCount(),
			AnalyzedVariables:    analyzedVars,
			ExcludedVariables:    len(excluded),
			TotalDependencies:    catalog.DependencyCount(),
			AnalyzedDependencies: analyzedDeps,
			AnalysisCompletion:   completion,
		},
	}
}

// SummaryText 生成人类可读的报告摘要
func (r *FinalReport) SummaryText() string {
	var sb strings.Builder

	sb.WriteString("SMART CONTRACT TOKEN FLOW ANALYSIS SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString("ANALYSIS STATISTICS\n")
	sb.WriteString(fmt.Sprintf("Iterations performed: %d\n", r.IterationsPerformed))
	sb.WriteString(fmt.Sprintf("Variables analyzed: %d/%d\n",
		r.AnalysisSummary.AnalyzedVariables, r.AnalysisSummary.TotalVariables))
	sb.WriteString(fmt.Sprintf("Variables excluded: %d\n", r.AnalysisSummary.ExcludedVariables))
	sb.WriteString(fmt.Sprintf("Dependencies analyzed: %d/%d\n",
		r.AnalysisSummary.AnalyzedDependencies, r.AnalysisSummary.TotalDependencies))
	sb.WriteString(fmt.Sprintf("Analysis completion: %s\n\n", r.AnalysisSummary.AnalysisCompletion))

	if r.Status == StatusVulnerabilityFound && r.BestFinding != nil && r.BestFinding.Action != nil {
		best := r.BestFinding
		sb.WriteString("VULNERABILITY FOUND\n")
		sb.WriteString(fmt.Sprintf("Type: %s\n", best.Action.VulnerabilityType))
		sb.WriteString(fmt.Sprintf("Confidence: %s\n\n", best.Action.Confidence))

		sb.WriteString("ATTACK SCENARIO:\n")
		sb.WriteString(best.Action.AttackScenario + "\n\n")

		sb.WriteString("PROFIT MECHANISM:\n")
		sb.WriteString(best.Action.ProfitMechanism + "\n\n")

		sb.WriteString("EXPLOIT CODE/SEQUENCE:\n")
		sb.WriteString(best.Action.ExploitCode + "\n\n")

		if best.Reflection != nil {
			sb.WriteString("EVALUATION:\n")
			sb.WriteString(best.Reflection.Evaluation + "\n\n")
		}
	} else {
		sb.WriteString("NO VULNERABILITY FOUND\n\n")
		sb.WriteString("The analysis did not identify any exploitable vulnerabilities.\n\n")
		sb.WriteString("SUMMARY OF ATTEMPTED APPROACHES:\n")

		for _, finding := range r.AllFindings {
			sb.WriteString(fmt.Sprintf("\nIteration %d:\n", finding.Iteration+1))
			if finding.Path != nil {
				sb.WriteString(fmt.Sprintf("Focus: %s\n", truncate(finding.Path.AnalysisFocus, 150)))
			}
			if finding.Action != nil && finding.Action.VulnerabilityFound {
				sb.WriteString("Result: Potential vulnerability\n")
				sb.WriteString(fmt.Sprintf("Type: %s\n", finding.Action.VulnerabilityType))
				if finding.Reflection != nil {
					sb.WriteString(fmt.Sprintf("Not viable because: %s\n",
						truncate(finding.Reflection.CriticalFlaws, 150)))
				}
			} else {
				sb.WriteString("Result: No vulnerability found\n")
			}
		}
	}

	sb.WriteString("\n" + strings.Repeat("=", 50) + "\n")
	sb.WriteString("End of Report\n")

	return sb.String()
}

// WriteFiles 将最终报告写入 final 目录：JSON 报告 + 人类可读摘要
func (r *FinalReport) WriteFiles(finalDir string) error {
	if err := os.MkdirAll(finalDir, 0755); err != nil {
		return fmt.Errorf("create final dir: %w", err)
	}

	if err := writeJSON(filepath.Join(finalDir, "final_report.json"), r); err != nil {
		return fmt.Errorf("write final report: %w", err)
	}

	summaryPath := filepath.Join(finalDir, "final_report_summary.txt")
	if err := os.WriteFile(summaryPath, []byte(r.SummaryText()), 0644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
