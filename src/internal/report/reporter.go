package report

import (
	"fmt"
	"time"

	"github.com/admi-n/solidity-Prospector/src/internal/analysis"
)

// Reporter 报告器，整合生成器和存储功能
type Reporter struct {
	generator Generator
	storage   Storage
}

// NewReporter 创建报告器
func NewReporter(generator Generator, storage Storage) *Reporter {
	return &Reporter{
		generator: generator,
		storage:   storage,
	}
}

// GenerateAndSave 生成并保存报告
func (r *Reporter) GenerateAndSave(report *CaseReport) (string, error) {
	content, err := r.generator.Generate(report)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	filepath, err := r.storage.Save(report, content)
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	return filepath, nil
}

// NewCaseReport 创建新的案例报告
func NewCaseReport(caseName, address, aiProvider, goal string, final *analysis.FinalReport) *CaseReport {
	return &CaseReport{
		CaseName:        caseName,
		ContractAddress: address,
		AIProvider:      aiProvider,
		Goal:            goal,
		AnalysisTime:    time.Now(),
		Final:           final,
	}
}
