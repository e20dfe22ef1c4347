package cmd

import (
	"fmt"

	"github.com/admi-n/solidity-Prospector/src/config"
	"github.com/admi-n/solidity-Prospector/src/internal"
	"github.com/admi-n/solidity-Prospector/src/internal/ai"
	"github.com/admi-n/solidity-Prospector/src/internal/handler"
)

// Execute 执行主命令逻辑
func Execute(cfg *CLIConfig) error {
	if cfg.Verbose {
		fmt.Printf("使用配置运行 Prospector: %+v\n", cfg)
	}

	// 加载配置文件
	if err := config.LoadSettings("src/config/settings.yaml"); err != nil {
		fmt.Printf("⚠️  警告: 无法加载配置文件: %v\n", err)
		fmt.Println("将尝试从环境变量读取配置...")
	}

	// 提前验证 provider，避免跑到一半才失败
	if err := ai.ValidateProvider(cfg.AIProvider); err != nil {
		return err
	}

	// 将 CLIConfig 映射到 internal.AnalyzeConfig
	internalCfg := internal.AnalyzeConfig{
		AIProvider:        cfg.AIProvider,
		CodeFile:          cfg.CodeFile,
		TargetAddress:     cfg.TargetAddress,
		CaseName:          cfg.CaseName,
		TargetDescription: cfg.TargetDescription,
		Goal:              cfg.Goal,
		MaxIterations:     cfg.MaxIterations,
		OutputDir:         cfg.OutputDir,
		Resume:            cfg.Resume,
		Verbose:           cfg.Verbose,
		Timeout:           cfg.Timeout,
		Proxy:             cfg.Proxy,
	}

	return handler.RunAnalyze(internalCfg)
}
