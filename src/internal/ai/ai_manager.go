package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/admi-n/solidity-Prospector/src/config"
)

// Manager 管理 AI 客户端并串行化补全请求
type Manager struct {
	client    AIClient
	rateLimit *rateLimiter
	mu        sync.Mutex
}

type rateLimiter struct {
	requests chan struct{}
	interval time.Duration
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	rl := &rateLimiter{
		requests: make(chan struct{}, requestsPerMinute),
		interval: time.Minute / time.Duration(requestsPerMinute),
	}

	for i := 0; i < requestsPerMinute; i++ {
		rl.requests <- struct{}{}
	}

	go func() {
		ticker := time.NewTicker(rl.interval)
		defer ticker.Stop()
		for range ticker.C {
			select {
			case rl.requests <- struct{}{}:
			default:
			}
		}
	}()

	return rl
}

func (rl *rateLimiter) Wait(ctx context.Context) error {
	select {
	case <-rl.requests:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type ManagerConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Timeout        time.Duration
	Proxy          string
	RequestsPerMin int
}

// NewManager 创建新的 AI 管理器
func NewManager(cfg ManagerConfig) (*Manager, error) {
	// 如果没有提供 APIKey，尝试从配置文件读取
	if cfg.APIKey == "" && (cfg.Provider == "chatgpt" || cfg.Provider == "openai" || cfg.Provider == "gpt4") {
		apiKey, err := config.GetOpenAIKey()
		if err != nil {
			return nil, fmt.Errorf("failed to get OpenAI API key from config: %w", err)
		}
		cfg.APIKey = apiKey
	}

	if cfg.APIKey == "" && cfg.Provider == "deepseek" {
		apiKey, err := config.GetDeepSeekKey()
		if err != nil {
			return nil, fmt.Errorf("failed to get DeepSeek API key from config: %w", err)
		}
		cfg.APIKey = apiKey
	}

	client, err := NewAIClient(AIClientConfig{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		Timeout:  cfg.Timeout,
		Proxy:    cfg.Proxy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}

	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 20
	}

	return &Manager{
		client:    client,
		rateLimit: newRateLimiter(cfg.RequestsPerMin),
	}, nil
}

// Complete 发送补全请求，受速率限制约束
func (m *Manager) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.rateLimit.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	startTime := time.Now()
	response, err := m.client.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("AI completion failed: %w", err)
	}

	fmt.Printf("✅ 模型响应完成，耗时: %v\n", time.Since(startTime))

	return response, nil
}

// Name 返回底层客户端名称
func (m *Manager) Name() string {
	return m.client.Name()
}

func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

func (m *Manager) TestConnection(ctx context.Context) error {
	fmt.Println("🔍 测试 AI 客户端连接...")

	testPrompt := "Please respond with 'OK' if you can read this message."
	_, err := m.client.Complete(ctx, testPrompt)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}

	fmt.Println("✅ AI 客户端连接成功!")
	return nil
}
