package internal

import "time"

// AnalyzeConfig 单次迭代分析任务的运行配置
type AnalyzeConfig struct {
	AIProvider        string
	CodeFile          string
	TargetAddress     string
	CaseName          string
	TargetDescription string
	Goal              string
	MaxIterations     int
	OutputDir         string
	Resume            bool
	Verbose           bool
	Timeout           time.Duration
	Proxy             string
}

// Contract 表示待分析的合约基础信息
type Contract struct {
	Address string
	Code    string
}
