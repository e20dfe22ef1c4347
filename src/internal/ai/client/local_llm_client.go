package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LocalLLMClient 实现本地 Ollama API 调用
type LocalLLMClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	timeout    time.Duration
}

// LocalLLMConfig 配置结构
type LocalLLMConfig struct {
	BaseURL string // 默认 "http://localhost:11434"
	Model   string // 默认 "qwen2.5-coder:14b"
	Timeout time.Duration
}

// Ollama API 请求/响应结构
type ollamaRequest struct {
	Model       string                 `json:"model"`
	Prompt      string                 `json:"prompt"`
	System      string                 `json:"system,omitempty"`
	Stream      bool                   `json:"stream"`
	Options     map[string]interface{} `json:"options,omitempty"`
	Temperature float64                `json:"temperature,omitempty"`
}

type ollamaResponse struct {
	Model              string `json:"model"`
	CreatedAt          string `json:"created_at"`
	Response           string `json:"response"`
	Done               bool   `json:"done"`
	PromptEvalCount    int    `json:"prompt_eval_count"`
	EvalCount          int    `json:"eval_count"`
	TotalDuration      int64  `json:"total_duration"`
	LoadDuration       int64  `json:"load_duration"`
	PromptEvalDuration int64  `json:"prompt_eval_duration"`
	EvalDuration       int64  `json:"eval_duration"`
	Error              string `json:"error,omitempty"`
}

// NewLocalLLMClient 创建新的本地 LLM 客户端
func NewLocalLLMClient(cfg LocalLLMConfig) (*LocalLLMClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}

	if cfg.Model == "" {
		cfg.Model = "qwen2.5-coder:14b"
	}

	if cfg.Timeout == 0 {
		// 本地推理较慢，给更长的超时
		cfg.Timeout = 300 * time.Second
	}

	return &LocalLLMClient{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		timeout: cfg.Timeout,
	}, nil
}

// SendPrompt 发送 prompt 到 Ollama API 并返回响应
func (c *LocalLLMClient) SendPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := ollamaRequest{
		Model:  c.model,
		Prompt: userPrompt,
		System: systemPrompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": 0.1,
			"num_predict": 4096,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request to local LLM: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if apiResp.Error != "" {
		return "", fmt.Errorf("Ollama API error: %s", apiResp.Error)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	fmt.Printf("📊 Token 使用: Prompt=%d, Completion=%d, 耗时=%.1fs\n",
		apiResp.PromptEvalCount,
		apiResp.EvalCount,
		float64(apiResp.TotalDuration)/1e9)

	return apiResp.Response, nil
}

// Complete 文本补全调用（实现 CompletionClient 接口）
func (c *LocalLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	systemPrompt := `You are an expert smart contract security auditor.
Follow the task instructions in the user message precisely.
When a JSON response format is specified, return ONLY the JSON object, without any additional text.`

	return c.SendPrompt(ctx, systemPrompt, prompt)
}

// Name 返回客户端名称
func (c *LocalLLMClient) Name() string {
	return fmt.Sprintf("Local LLM (%s)", c.model)
}

// Close 清理资源
func (c *LocalLLMClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// TestConnection 测试与 Ollama 服务的连接
func (c *LocalLLMClient) TestConnection(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/tags", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("无法连接到本地 LLM 服务 %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("本地 LLM 服务响应异常: status %d", resp.StatusCode)
	}

	return nil
}
