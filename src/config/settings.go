package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/admi-n/solidity-Prospector/src/strategy/prompts"
)

// AIConfig AI 相关配置
type AIConfig struct {
	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"` // 可选，默认使用官方 API
		Model   string `yaml:"model"`    // 可选，默认 gpt-4-turbo
	} `yaml:"openai"`

	DeepSeek struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"` // 默认 https://api.deepseek.com/v1
		Model   string `yaml:"model"`    // 默认 deepseek-chat
	} `yaml:"deepseek"`

	LocalLLM struct {
		BaseURL string `yaml:"base_url"` // 例如 http://localhost:11434
		Model   string `yaml:"model"`    // 例如 qwen2.5-coder:14b
	} `yaml:"local_llm"`
}

// AnalysisConfig 迭代分析相关配置
type AnalysisConfig struct {
	Goal          string              `yaml:"goal"`           // 默认分析目标
	MaxIterations int                 `yaml:"max_iterations"` // 默认迭代轮数
	TemplateDir   string              `yaml:"template_dir"`   // 可选，外部 prompt 模板目录
	Assumptions   prompts.Assumptions `yaml:"assumptions"`
}

// Settings 全局配置结构
type Settings struct {
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Archive struct {
		DSN string `yaml:"dsn"` // Postgres 归档库，留空则禁用归档
	} `yaml:"archive"`

	RPC struct {
		Ethereum string `yaml:"ethereum"`
		BSC      string `yaml:"bsc"`
		Arbitrum string `yaml:"arbitrum"`
	} `yaml:"rpc"`

	AI AIConfig `yaml:"ai"`

	Analysis AnalysisConfig `yaml:"analysis"`
}

var globalSettings *Settings

// LoadSettings 加载配置文件
func LoadSettings(configPath string) error {
	if configPath == "" {
		configPath = "config/settings.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	globalSettings = &settings
	return nil
}

// GetSettings 返回已加载的配置，未加载时尝试默认路径
func GetSettings() *Settings {
	if globalSettings == nil {
		LoadSettings("")
	}
	return globalSettings
}

// GetOpenAIKey 获取 OpenAI API Key
func GetOpenAIKey() (string, error) {
	// 优先从环境变量读取
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key, nil
	}

	if globalSettings == nil {
		if err := LoadSettings(""); err != nil {
			return "", err
		}
	}

	if globalSettings.AI.OpenAI.APIKey == "" {
		return "", fmt.Errorf("OpenAI API key not found in config or environment variable OPENAI_API_KEY")
	}

	return globalSettings.AI.OpenAI.APIKey, nil
}

// GetOpenAIBaseURL 获取 OpenAI Base URL
func GetOpenAIBaseURL() string {
	if globalSettings == nil {
		LoadSettings("")
	}

	if globalSettings != nil && globalSettings.AI.OpenAI.BaseURL != "" {
		return globalSettings.AI.OpenAI.BaseURL
	}

	return "https://api.openai.com/v1" // 默认值
}

// GetOpenAIModel 获取 OpenAI 模型名称
func GetOpenAIModel() string {
	if globalSettings == nil {
		LoadSettings("")
	}

	if globalSettings != nil && globalSettings.AI.OpenAI.Model != "" {
		return globalSettings.AI.OpenAI.Model
	}

	return "gpt-4-turbo" // 默认值
}

// GetDeepSeekKey 获取 DeepSeek API Key
func GetDeepSeekKey() (string, error) {
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		return key, nil
	}

	if globalSettings == nil {
		if err := LoadSettings(""); err != nil {
			return "", err
		}
	}

	if globalSettings.AI.DeepSeek.APIKey == "" {
		return "", fmt.Errorf("DeepSeek API key not found in config or environment variable DEEPSEEK_API_KEY")
	}

	return globalSettings.AI.DeepSeek.APIKey, nil
}

// GetDeepSeekBaseURL 获取 DeepSeek Base URL
func GetDeepSeekBaseURL() string {
	if globalSettings == nil {
		LoadSettings("")
	}

	if globalSettings != nil && globalSettings.AI.DeepSeek.BaseURL != "" {
		return globalSettings.AI.DeepSeek.BaseURL
	}

	return "https://api.deepseek.com/v1" // 默认值
}

// GetDeepSeekModel 获取 DeepSeek 模型名称
func GetDeepSeekModel() string {
	if globalSettings == nil {
		LoadSettings("")
	}

	if globalSettings != nil && globalSettings.AI.DeepSeek.Model != "" {
		return globalSettings.AI.DeepSeek.Model
	}

	return "deepseek-chat" // 默认值
}

// GetLocalLLMConfig 获取本地 LLM 配置
func GetLocalLLMConfig() (baseURL, model string) {
	if globalSettings == nil {
		LoadSettings("")
	}

	if globalSettings != nil {
		baseURL = globalSettings.AI.LocalLLM.BaseURL
		model = globalSettings.AI.LocalLLM.Model
	}

	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "qwen2.5-coder:14b"
	}

	return baseURL, model
}

// GetArchiveDSN 获取 Postgres 归档库 DSN，未配置时返回空串
func GetArchiveDSN() string {
	if dsn := os.Getenv("ARCHIVE_DSN"); dsn != "" {
		return dsn
	}

	if globalSettings == nil {
		LoadSettings("")
	}

	if globalSettings != nil {
		return globalSettings.Archive.DSN
	}

	return ""
}

// GetAnalysisConfig 返回迭代分析配置，assumptions 补齐默认值
func GetAnalysisConfig() AnalysisConfig {
	if globalSettings == nil {
		LoadSettings("")
	}

	var cfg AnalysisConfig
	if globalSettings != nil {
		cfg = globalSettings.Analysis
	}

	if cfg.Goal == "" {
		cfg.Goal = "Steal tokens from the contract or drain more value than deposited"
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	cfg.Assumptions = cfg.Assumptions.WithDefaults()

	return cfg
}
