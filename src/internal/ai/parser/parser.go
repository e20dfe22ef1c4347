package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Parser 解析 AI 返回的各阶段分析结果
type Parser struct {
	jsonExtractor *regexp.Regexp
}

// NewParser 创建新的解析器
func NewParser() *Parser {
	// 用于提取 JSON 代码块的正则表达式
	jsonRegex := regexp.MustCompile("```(?:json)?\n?([\\s\\S]*?)\n?```")

	return &Parser{
		jsonExtractor: jsonRegex,
	}
}

// ParseFailure 表示响应无法解析为期望的 JSON 结构。
// 携带原始响应文本，供调用方降级处理或留档排查。
type ParseFailure struct {
	Raw string
	Err error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("failed to parse AI response as JSON: %v", e.Err)
}

func (e *ParseFailure) Unwrap() error {
	return e.Err
}

// Extract 将响应文本解析到 v。
// 依次尝试：直接解析 -> markdown 代码块提取 -> 截取最外层大括号。
// 全部失败时返回 *ParseFailure，调用方自行决定降级策略，绝不中断分析循环。
func (p *Parser) Extract(response string, v interface{}) error {
	// 尝试直接解析 JSON
	err := json.Unmarshal([]byte(response), v)
	if err == nil {
		return nil
	}

	// 尝试从 markdown 代码块中提取 JSON
	matches := p.jsonExtractor.FindStringSubmatch(response)
	if len(matches) > 1 {
		jsonStr := strings.TrimSpace(matches[1])
		if uErr := json.Unmarshal([]byte(jsonStr), v); uErr == nil {
			return nil
		}
	}

	// 如果仍然失败，尝试清理响应并再次解析
	cleaned := p.cleanResponse(response)
	if uErr := json.Unmarshal([]byte(cleaned), v); uErr == nil {
		return nil
	}

	return &ParseFailure{Raw: response, Err: err}
}

// cleanResponse 清理响应文本，截取第一个 { 到最后一个 } 之间的内容
func (p *Parser) cleanResponse(response string) string {
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")

	if start >= 0 && end > start {
		response = response[start : end+1]
	}

	return response
}

// ParsePreprocess 解析预处理阶段的响应。
// 解析失败时返回空 Catalog 的降级结果（非致命），并附带 ParseFailure。
func (p *Parser) ParsePreprocess(response string) (*PreprocessResult, error) {
	var result PreprocessResult
	if err := p.Extract(response, &result); err != nil {
		return FallbackPreprocessResult(response), err
	}
	result.RawResponse = response
	return &result, nil
}

// ParsePath 解析路径生成阶段的响应
func (p *Parser) ParsePath(response string) (*PathResult, error) {
	var result PathResult
	if err := p.Extract(response, &result); err != nil {
		return FallbackPathResult(response), err
	}
	result.RawResponse = response
	return &result, nil
}

// ParseAction 解析攻击假设阶段的响应
func (p *Parser) ParseAction(response string) (*ActionResult, error) {
	var result ActionResult
	if err := p.Extract(response, &result); err != nil {
		return FallbackActionResult(response), err
	}
	result.RawResponse = response
	return &result, nil
}

// ParseReflection 解析批判评估阶段的响应
func (p *Parser) ParseReflection(response string) (*ReflectionResult, error) {
	var result ReflectionResult
	if err := p.Extract(response, &result); err != nil {
		return FallbackReflectionResult(response), err
	}
	result.RawResponse = response
	return &result, nil
}
