package cmd

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CLIConfig 保存解析好的 CLI 选项以及供分析器使用的规范化字段。
type CLIConfig struct {
	AIProvider        string // 例如 chatgpt
	CodeFile          string // 本地合约代码文件路径
	TargetAddress     string // 单个合约地址，从数据库/链上获取代码
	CaseName          string // 案例名，默认按地址/文件名生成
	TargetDescription string // 目标功能描述（引导预处理关注点）
	Goal              string // 分析目标，空则使用配置默认
	MaxIterations     int    // 最大迭代轮数
	OutputDir         string // 输出根目录，默认 analysis_output
	Resume            bool   // 从已有案例目录恢复案例记忆续跑
	Verbose           bool
	Timeout           time.Duration

	Proxy string // HTTP 代理 (例如 http://127.0.0.1:7897)
}

// Validate 检查 CLIConfig 的必需/一致性输入。
func (c *CLIConfig) Validate() error {
	if c.AIProvider == "" {
		return errors.New("-ai is required (e.g. -ai chatgpt)")
	}
	if c.CodeFile == "" && c.TargetAddress == "" {
		return errors.New("analysis target required: -code <file> or -t-address <address>")
	}
	if c.CodeFile != "" && c.TargetAddress != "" {
		return errors.New("-code and -t-address are mutually exclusive")
	}
	if c.Resume && c.CaseName == "" {
		return errors.New("-resume requires -name to locate the existing case directory")
	}
	if c.MaxIterations < 0 {
		return errors.New("-iterations must be positive")
	}
	return nil
}

// showHelp 显示帮助信息
func showHelp(topic string) {
	switch topic {
	case "ai":
		showAIHelp()
	case "code", "t-address", "target":
		showTargetHelp()
	case "goal", "iterations":
		showGoalHelp()
	case "resume", "name":
		showResumeHelp()
	default:
		showGeneralHelp()
	}
}

// showGeneralHelp 显示通用帮助
func showGeneralHelp() {
	fmt.Println("🔬 Solidity Prospector - 迭代式代币流漏洞分析工具")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  prospector [选项]")
	fmt.Println()
	fmt.Println("主要选项:")
	fmt.Println("  -ai <provider>     指定AI提供商")
	fmt.Println("  -code <file>       分析本地合约代码文件")
	fmt.Println("  -t-address <addr>  分析指定地址的合约（数据库/链上获取）")
	fmt.Println("  -target <desc>     目标功能描述（引导分析关注点）")
	fmt.Println("  -goal <goal>       分析目标")
	fmt.Println("  -iterations <n>    最大迭代轮数 (默认 5)")
	fmt.Println("  -name <case>       案例名")
	fmt.Println("  -o <dir>           输出根目录 (默认 analysis_output)")
	fmt.Println("  -resume            从已有案例记忆续跑 (需要 -name)")
	fmt.Println("  -proxy <url>       HTTP 代理")
	fmt.Println("  -v                 详细输出")
	fmt.Println()
	fmt.Println("获取特定命令的帮助:")
	fmt.Println("  prospector -ai --help       # AI提供商帮助")
	fmt.Println("  prospector -code --help     # 分析目标帮助")
	fmt.Println("  prospector -goal --help     # 分析目标/迭代帮助")
	fmt.Println("  prospector -resume --help   # 续跑帮助")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  prospector -ai chatgpt -code contracts/Vault.sol -target \"withdraw function\"")
	fmt.Println("  prospector -ai deepseek -t-address 0x123... -iterations 8")
}

// showAIHelp 显示AI提供商帮助
func showAIHelp() {
	fmt.Println("🤖 AI提供商 (-ai)")
	fmt.Println()
	fmt.Println("功能: 指定用于迭代分析的AI模型")
	fmt.Println()
	fmt.Println("支持的提供商:")
	fmt.Println("  chatgpt      OpenAI ChatGPT (推荐)")
	fmt.Println("  openai       OpenAI GPT-4")
	fmt.Println("  gpt4         OpenAI GPT-4")
	fmt.Println("  deepseek     DeepSeek AI")
	fmt.Println("  local-llm    本地LLM (Ollama)")
	fmt.Println("  ollama       本地Ollama")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  prospector -ai <provider> [其他选项]")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  prospector -ai chatgpt -code contracts/Vault.sol")
	fmt.Println("  prospector -ai deepseek -t-address 0x123...")
	fmt.Println("  prospector -ai local-llm -code contracts/Token.sol")
	fmt.Println()
	fmt.Println("配置:")
	fmt.Println("  在 config/settings.yaml 中设置API密钥")
	fmt.Println("  或使用环境变量: OPENAI_API_KEY, DEEPSEEK_API_KEY")
}

// showTargetHelp 显示分析目标帮助
func showTargetHelp() {
	fmt.Println("🎯 分析目标 (-code / -t-address / -target)")
	fmt.Println()
	fmt.Println("功能: 指定要分析的合约来源和关注点")
	fmt.Println()
	fmt.Println("来源选项 (二选一):")
	fmt.Println("  -code <file>        本地合约代码文件")
	fmt.Println("  -t-address <addr>   合约地址，优先查数据库，未命中则回退链上字节码")
	fmt.Println()
	fmt.Println("注意: 纯字节码（未开源）合约无法进行代币流分析")
	fmt.Println()
	fmt.Println("关注点选项:")
	fmt.Println("  -target <desc>      目标功能描述，例如 \"the withdraw and claim functions\"")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  prospector -ai chatgpt -code contracts/Vault.sol -target \"withdraw function\"")
	fmt.Println("  prospector -ai deepseek -t-address 0x123... -proxy http://127.0.0.1:7897")
}

// showGoalHelp 显示分析目标/迭代帮助
func showGoalHelp() {
	fmt.Println("🏁 分析目标与迭代 (-goal / -iterations)")
	fmt.Println()
	fmt.Println("功能: 控制分析的终止条件")
	fmt.Println()
	fmt.Println("选项:")
	fmt.Println("  -goal <goal>        攻击目标描述，反思阶段以此裁决是否达成")
	fmt.Println("  -iterations <n>     最大迭代轮数，达到后强制终止 (默认 5)")
	fmt.Println()
	fmt.Println("终止条件 (按优先级):")
	fmt.Println("  1. 目标达成 -> vulnerability_found")
	fmt.Println("  2. 所有变量和依赖已分析或排除 -> analysis_complete")
	fmt.Println("  3. 达到最大轮数 -> max_iterations_reached")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  prospector -ai chatgpt -code Vault.sol -goal \"Drain more tokens than deposited\"")
	fmt.Println("  prospector -ai deepseek -t-address 0x123... -iterations 10")
}

// showResumeHelp 显示续跑帮助
func showResumeHelp() {
	fmt.Println("🔄 续跑 (-resume / -name)")
	fmt.Println()
	fmt.Println("功能: 从已有案例目录恢复案例记忆继续分析")
	fmt.Println()
	fmt.Println("说明:")
	fmt.Println("  案例记忆 (case_memory.json) 在每次变更后立即持久化，")
	fmt.Println("  中断后可通过 -resume -name <case> 恢复排除列表和历史发现。")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  prospector -ai chatgpt -code Vault.sol -name vault_case")
	fmt.Println("  prospector -ai chatgpt -code Vault.sol -name vault_case -resume")
}

// ParseFlags 解析 os.Args 并返回 CLIConfig 或错误。用于从 main 调用。
func ParseFlags() (*CLIConfig, error) {
	// 检查是否请求帮助
	if len(os.Args) > 1 {
		// 处理特定命令的帮助请求 (如 -ai --help)
		for i := 1; i < len(os.Args)-1; i++ {
			if os.Args[i+1] == "--help" || os.Args[i+1] == "-h" {
				cmd := os.Args[i]
				if strings.HasPrefix(cmd, "--") {
					cmd = cmd[2:]
				} else if strings.HasPrefix(cmd, "-") {
					cmd = cmd[1:]
				}
				showHelp(cmd)
				os.Exit(0)
			}
		}

		// 处理通用帮助请求
		for _, arg := range os.Args[1:] {
			if arg == "--help" || arg == "-h" {
				showGeneralHelp()
				os.Exit(0)
			}
		}
	}

	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.Usage = func() {
		showGeneralHelp()
	}

	ai := fs.String("ai", "", "AI provider to use (e.g. chatgpt)")
	code := fs.String("code", "", "Path to local contract source file to analyze")
	taddress := fs.String("t-address", "", "单个合约地址，从数据库或链上获取代码")
	name := fs.String("name", "", "案例名，默认按地址/文件名加时间戳生成")
	target := fs.String("target", "", "目标功能描述，引导预处理关注的代币流")
	goal := fs.String("goal", "", "分析目标，空则使用 settings.yaml 中的默认目标")
	iterations := fs.Int("iterations", 0, "最大迭代轮数 (默认 5)")
	output := fs.String("o", "analysis_output", "输出根目录")
	resume := fs.Bool("resume", false, "从已有案例记忆续跑（需要 -name）")
	verbose := fs.Bool("v", false, "Verbose output")
	timeout := fs.Duration("timeout", 120*time.Second, "Per-AI request timeout")
	proxy := fs.String("proxy", "", "可选 HTTP 代理，例如 http://127.0.0.1:7897")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}

	cfg := &CLIConfig{
		AIProvider:        strings.TrimSpace(*ai),
		CodeFile:          strings.TrimSpace(*code),
		TargetAddress:     strings.TrimSpace(*taddress),
		CaseName:          strings.TrimSpace(*name),
		TargetDescription: strings.TrimSpace(*target),
		Goal:              strings.TrimSpace(*goal),
		MaxIterations:     *iterations,
		OutputDir:         strings.TrimSpace(*output),
		Resume:            *resume,
		Verbose:           *verbose,
		Timeout:           *timeout,
		Proxy:             strings.TrimSpace(*proxy),
	}

	// 如果提供了代码文件路径但不是绝对路径，则将其转为相对于当前工作目录
	if cfg.CodeFile != "" {
		if !filepath.IsAbs(cfg.CodeFile) {
			cwd, _ := os.Getwd()
			cfg.CodeFile = filepath.Join(cwd, cfg.CodeFile)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Run 是一个便利包装，解析 flags 并分派到相应处理器。
func Run() error {
	cfg, err := ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	return Execute(cfg)
}

// PrintFatal 将错误打印到 stderr 并以非零代码退出。
func PrintFatal(err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "错误:", err)
	os.Exit(1)
}
