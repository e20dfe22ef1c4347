package handler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/admi-n/solidity-Prospector/src/config"
	"github.com/admi-n/solidity-Prospector/src/internal"
	"github.com/admi-n/solidity-Prospector/src/internal/ai"
	"github.com/admi-n/solidity-Prospector/src/internal/analysis"
	"github.com/admi-n/solidity-Prospector/src/internal/archive"
	"github.com/admi-n/solidity-Prospector/src/internal/memory"
	"github.com/admi-n/solidity-Prospector/src/internal/report"
	"github.com/admi-n/solidity-Prospector/src/internal/source"
	"github.com/admi-n/solidity-Prospector/src/strategy/prompts"
)

const globalMemoryPath = "memory/global_memory.json"

// RunAnalyze 执行单案例迭代分析：获取代码 -> 预处理 -> 迭代 -> 最终报告
func RunAnalyze(cfg internal.AnalyzeConfig) error {
	fmt.Println("🔬 启动迭代式代币流漏洞分析...")

	// 1. 解析合约代码
	ctx := context.Background()
	contractCode, err := resolveContractCode(ctx, cfg)
	if err != nil {
		return err
	}

	// 未开源合约无法做语义分析，入口处直接拒绝
	if source.IsOnlyBytecode(contractCode) {
		return fmt.Errorf("合约未开源（仅字节码），无法进行代币流分析")
	}

	// 2. 准备案例输出目录
	caseName := cfg.CaseName
	if caseName == "" {
		caseName = defaultCaseName(cfg)
	}

	outputRoot := cfg.OutputDir
	if outputRoot == "" {
		outputRoot = "analysis_output"
	}
	caseDir := filepath.Join(outputRoot, caseName)
	for _, sub := range []string{"preprocessing", "iterations", "final"} {
		if err := os.MkdirAll(filepath.Join(caseDir, sub), 0755); err != nil {
			return fmt.Errorf("创建输出目录失败: %w", err)
		}
	}

	fmt.Printf("📂 案例目录: %s\n", caseDir)

	// 3. 初始化日志
	logger, err := newLogger(cfg.Verbose, caseDir)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()

	// 4. 初始化记忆管理器（续跑时恢复已有案例记忆）
	var mem *memory.Manager
	if cfg.Resume {
		mem = memory.NewManager(globalMemoryPath, "", logger)
		mem.LoadCaseMemory(caseDir)
		fmt.Println("🔄 续跑模式：已恢复案例记忆")
	} else {
		mem = memory.NewManager(globalMemoryPath, caseDir, logger)
	}

	// 5. 创建 AI 管理器
	aiManager, err := ai.NewManager(ai.ManagerConfig{
		Provider:       cfg.AIProvider,
		Timeout:        cfg.Timeout,
		Proxy:          cfg.Proxy,
		RequestsPerMin: 20,
	})
	if err != nil {
		return fmt.Errorf("创建 AI 管理器失败: %w", err)
	}
	defer aiManager.Close()

	// 6. 测试 AI 连接
	if err := aiManager.TestConnection(ctx); err != nil {
		return fmt.Errorf("AI 连接测试失败: %w", err)
	}

	// 7. 组装分析器
	analysisCfg := config.GetAnalysisConfig()

	goal := cfg.Goal
	if goal == "" {
		goal = analysisCfg.Goal
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = analysisCfg.MaxIterations
	}
	target := cfg.TargetDescription
	if target == "" {
		target = "All functions that move tokens or value"
	}

	builder := prompts.NewBuilder(analysisCfg.Assumptions, analysisCfg.TemplateDir)

	analyzer := analysis.NewAnalyzer(aiManager, mem, builder, logger, analysis.Config{
		MaxIterations: maxIterations,
		OutputDir:     caseDir,
		Goal:          goal,
		Target:        target,
	})

	fmt.Printf("🤖 使用 %s 进行分析，最多 %d 轮迭代\n", aiManager.Name(), maxIterations)
	fmt.Printf("🎯 分析目标: %s\n\n", goal)

	// 8. 执行分析
	startTime := time.Now()
	finalReport, err := analyzer.Analyze(ctx, contractCode)
	if err != nil {
		fmt.Printf("⚠️  分析提前中断: %v\n", err)
	}
	duration := time.Since(startTime)

	// 9. 落盘最终报告
	if err := finalReport.WriteFiles(filepath.Join(caseDir, "final")); err != nil {
		return fmt.Errorf("写入最终报告失败: %w", err)
	}

	// 10. 生成 markdown 报告
	caseReport := report.NewCaseReport(caseName, cfg.TargetAddress, aiManager.Name(), goal, finalReport)
	reporter := report.NewReporter(report.NewMarkdownGenerator(), report.NewFileStorage(filepath.Join(caseDir, "final")))
	if reportPath, err := reporter.GenerateAndSave(caseReport); err != nil {
		fmt.Printf("⚠️  生成 markdown 报告失败: %v\n", err)
	} else {
		fmt.Printf("📝 报告已保存: %s\n", reportPath)
	}

	// 11. 归档到 Postgres（可选，失败不影响结果）
	archiveCase(ctx, logger, caseName, cfg.TargetAddress, goal, finalReport)

	// 12. 打印总结
	printSummary(finalReport, duration)

	return nil
}

// resolveContractCode 按优先级获取合约代码：本地文件 > 数据库/链上
func resolveContractCode(ctx context.Context, cfg internal.AnalyzeConfig) (string, error) {
	if cfg.CodeFile != "" {
		fmt.Printf("📄 从文件读取合约代码: %s\n", cfg.CodeFile)
		return source.ReadCodeFile(cfg.CodeFile)
	}

	if strings.TrimSpace(cfg.TargetAddress) == "" {
		return "", fmt.Errorf("缺少分析目标: 请通过 -code 指定代码文件或 -t-address 指定合约地址")
	}

	// 地址模式：数据库查询 + 链上回退
	db, err := config.InitDB()
	if err != nil {
		fmt.Printf("⚠️  数据库不可用: %v，仅尝试链上获取\n", err)
		db = nil
	} else {
		defer db.Close()
	}

	fetcher, err := source.NewFetcher(db, cfg.Proxy)
	if err != nil {
		return "", fmt.Errorf("创建合约获取器失败: %w", err)
	}
	defer fetcher.Close()

	fmt.Printf("🔍 获取合约代码: %s\n", cfg.TargetAddress)
	return fetcher.FetchByAddress(ctx, strings.TrimSpace(cfg.TargetAddress))
}

// defaultCaseName 生成默认案例名：地址或文件名 + 时间戳
func defaultCaseName(cfg internal.AnalyzeConfig) string {
	base := "case"
	if cfg.TargetAddress != "" {
		base = strings.ToLower(strings.TrimSpace(cfg.TargetAddress))
	} else if cfg.CodeFile != "" {
		base = strings.TrimSuffix(filepath.Base(cfg.CodeFile), filepath.Ext(cfg.CodeFile))
	}
	return fmt.Sprintf("%s_%d", base, time.Now().Unix())
}

// newLogger 创建 zap 日志器，日志文件写入案例目录
func newLogger(verbose bool, caseDir string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if verbose {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.OutputPaths = []string{"stderr", filepath.Join(caseDir, "analysis.log")}
	return zapCfg.Build()
}

// archiveCase 尝试归档案例，未配置归档库时静默跳过
func archiveCase(ctx context.Context, logger *zap.Logger, caseName, address, goal string, final *analysis.FinalReport) {
	dsn := config.GetArchiveDSN()
	if dsn == "" {
		return
	}

	arc, err := archive.New(ctx, dsn, logger)
	if err != nil {
		fmt.Printf("⚠️  归档库连接失败: %v（跳过归档）\n", err)
		return
	}
	defer arc.Close()

	if err := arc.SaveCase(ctx, caseName, address, goal, final); err != nil {
		fmt.Printf("⚠️  案例归档失败: %v\n", err)
		return
	}
	fmt.Println("🗄️  案例已归档到 Postgres")
}

// printSummary 打印最终结果摘要
func printSummary(final *analysis.FinalReport, duration time.Duration) {
	fmt.Printf("\n%s\n", strings.Repeat("=", 50))
	switch final.Status {
	case analysis.StatusVulnerabilityFound:
		fmt.Println("🔴 发现漏洞！")
		if final.BestFinding != nil && final.BestFinding.Action != nil {
			fmt.Printf("   - 类型: %s\n", final.BestFinding.Action.VulnerabilityType)
			fmt.Printf("   - 置信度: %s\n", final.BestFinding.Action.Confidence)
			fmt.Printf("   - 发现于迭代: %d\n", final.BestFinding.Iteration+1)
		}
	case analysis.StatusAnalysisComplete:
		fmt.Println("🟢 分析完成，未发现漏洞（所有候选已覆盖）")
	default:
		fmt.Println("🟡 达到最大迭代轮数，未发现漏洞")
	}
	fmt.Printf("   - 迭代轮数: %d\n", final.IterationsPerformed)
	fmt.Printf("   - 变量覆盖: %d/%d\n",
		final.AnalysisSummary.AnalyzedVariables, final.AnalysisSummary.TotalVariables)
	fmt.Printf("   - 依赖覆盖: %d/%d\n",
		final.AnalysisSummary.AnalyzedDependencies, final.AnalysisSummary.TotalDependencies)
	fmt.Printf("   - 总耗时: %v\n", duration.Round(time.Second))
	fmt.Printf("%s\n\n", strings.Repeat("=", 50))
}
