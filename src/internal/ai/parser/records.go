package parser

import (
	"encoding/json"
	"strings"
)

// 解析失败时各字段填充的标记文本，与报告中的降级提示保持一致
const ParseErrorMarker = "error in parsing response"

// 操纵难度等级（序数：easy < medium < hard < impossible）
const (
	DifficultyEasy       = "easy"
	DifficultyMedium     = "medium"
	DifficultyHard       = "hard"
	DifficultyImpossible = "impossible"
)

// EntryInfo 描述一个影响代币流的变量或依赖
type EntryInfo struct {
	Type                   string `json:"type"`
	Description            string `json:"description"`
	ManipulationDifficulty string `json:"manipulation_difficulty"`
	ManipulationMethod     string `json:"manipulation_method"`
	ImpactOnTokenFlow      string `json:"impact_on_token_flow"`
}

// PreprocessResult 预处理阶段输出：代币流描述 + 变量/依赖目录
type PreprocessResult struct {
	TokenFlowDescription string               `json:"token_flow_description"`
	Variables            map[string]EntryInfo `json:"variables"`
	Dependencies         map[string]EntryInfo `json:"dependencies"`
	RawResponse          string               `json:"raw_response,omitempty"`
}

// FallbackPreprocessResult 返回空目录的降级结果（循环仍可继续并在耗尽检查处终止）
func FallbackPreprocessResult(raw string) *PreprocessResult {
	return &PreprocessResult{
		TokenFlowDescription: ParseErrorMarker,
		Variables:            map[string]EntryInfo{},
		Dependencies:         map[string]EntryInfo{},
		RawResponse:          raw,
	}
}

// PathResult 路径生成阶段输出
type PathResult struct {
	CodePath             string `json:"code_path"`
	AnalysisFocus        string `json:"analysis_focus"`
	ManipulationStrategy string `json:"manipulation_strategy"`
	ExpectedImpact       string `json:"expected_impact"`
	Assumptions          string `json:"assumptions"`
	RawResponse          string `json:"raw_response,omitempty"`
}

func FallbackPathResult(raw string) *PathResult {
	return &PathResult{
		CodePath:             ParseErrorMarker,
		AnalysisFocus:        ParseErrorMarker,
		ManipulationStrategy: ParseErrorMarker,
		ExpectedImpact:       ParseErrorMarker,
		Assumptions:          ParseErrorMarker,
		RawResponse:          raw,
	}
}

// ActionResult 攻击假设阶段输出（Hypothesis）
type ActionResult struct {
	VulnerabilityFound   bool   `json:"vulnerability_found"`
	VulnerabilityType    string `json:"vulnerability_type"`
	AttackScenario       string `json:"attack_scenario"`
	ExploitCode          string `json:"exploit_code"`
	ProfitMechanism      string `json:"profit_mechanism"`
	AttackPrerequisites  string `json:"attack_prerequisites"`
	AttackLimitations    string `json:"attack_limitations"`
	EdgeCases            string `json:"edge_cases"`
	Confidence           string `json:"confidence"`
	ReasonsIfNotFeasible string `json:"reasons_if_not_feasible"`
	Reasoning            string `json:"reasoning"`
	RawResponse          string `json:"raw_response,omitempty"`
}

func FallbackActionResult(raw string) *ActionResult {
	return &ActionResult{
		VulnerabilityFound:   false,
		VulnerabilityType:    ParseErrorMarker,
		AttackScenario:       ParseErrorMarker,
		ExploitCode:          ParseErrorMarker,
		ProfitMechanism:      ParseErrorMarker,
		AttackPrerequisites:  ParseErrorMarker,
		AttackLimitations:    ParseErrorMarker,
		EdgeCases:            ParseErrorMarker,
		Confidence:           "low",
		ReasonsIfNotFeasible: ParseErrorMarker,
		Reasoning:            ParseErrorMarker,
		RawResponse:          raw,
	}
}

// ReflectionResult 批判评估阶段输出（Critique）
type ReflectionResult struct {
	GoalMet               bool       `json:"goal_met"`
	FindingQuality        string     `json:"finding_quality"`
	Evaluation            string     `json:"evaluation"`
	CriticalFlaws         string     `json:"critical_flaws"`
	OverlookedConstraints string     `json:"overlooked_constraints"`
	VariablesToExclude    StringList `json:"variables_to_exclude"`
	VariablesToInclude    StringList `json:"variables_to_include"`
	AdditionalConditions  string     `json:"additional_conditions"`
	Suggestions           string     `json:"suggestions"`
	NewFocusAreas         string     `json:"new_focus_areas"`
	RawResponse           string     `json:"raw_response,omitempty"`
}

func FallbackReflectionResult(raw string) *ReflectionResult {
	return &ReflectionResult{
		GoalMet:               false,
		FindingQuality:        "low",
		Evaluation:            ParseErrorMarker,
		CriticalFlaws:         ParseErrorMarker,
		OverlookedConstraints: ParseErrorMarker,
		VariablesToExclude:    StringList{},
		VariablesToInclude:    StringList{},
		AdditionalConditions:  ParseErrorMarker,
		Suggestions:           "Try a different approach",
		NewFocusAreas:         ParseErrorMarker,
		RawResponse:           raw,
	}
}

// StringList 容忍模型把字符串列表写成单个字符串的情况：
// "foo" 被强制转换为 ["foo"]，"[\"a\",\"b\"]" 先尝试按 JSON 列表重新解析，
// 其它类型无法强制转换时按空列表处理。
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*l = items
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		single = strings.TrimSpace(single)
		if single == "" {
			*l = StringList{}
			return nil
		}
		// 字符串内容本身像一个 JSON 列表
		if strings.HasPrefix(single, "[") && strings.HasSuffix(single, "]") {
			var nested []string
			if err := json.Unmarshal([]byte(single), &nested); err == nil {
				*l = nested
				return nil
			}
		}
		*l = StringList{single}
		return nil
	}

	// 其它类型（数字/对象等）无法强制转换，按空列表处理
	*l = StringList{}
	return nil
}

// ConfidenceScore 置信度排序分值：high=3 medium=2 low=1，未知为 0
func ConfidenceScore(confidence string) int {
	switch strings.ToLower(strings.TrimSpace(confidence)) {
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}
