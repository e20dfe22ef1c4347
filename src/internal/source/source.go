package source

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/admi-n/solidity-Prospector/src/config"
)

// Fetcher 负责获取待分析合约代码：本地文件、MySQL、链上字节码回退
type Fetcher struct {
	db     *sql.DB
	client *ethclient.Client
}

// NewFetcher 创建合约代码获取器。db 可为 nil（纯文件模式），
// proxy 非空时设置全局 HTTP Transport 的代理，影响 ethclient 的默认 transport
func NewFetcher(db *sql.DB, proxy string) (*Fetcher, error) {
	if strings.TrimSpace(proxy) != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("解析 proxy URL 失败: %w", err)
		}
		http.DefaultTransport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}

	rpcURL, err := config.GetRPCURL()
	if err != nil {
		// RPC 未配置时仅失去链上回退能力
		return &Fetcher{db: db}, nil
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	return &Fetcher{
		db:     db,
		client: client,
	}, nil
}

// ReadCodeFile 读取本地合约代码文件
func ReadCodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("读取合约代码文件失败: %w", err)
	}

	code := strings.TrimSpace(string(data))
	if code == "" {
		return "", fmt.Errorf("合约代码文件为空: %s", path)
	}

	return code, nil
}

// FetchByAddress 按地址获取合约代码：先查数据库，未命中时回退为链上字节码
func (f *Fetcher) FetchByAddress(ctx context.Context, address string) (string, error) {
	// 先尝试从数据库获取（字段名是 contract）
	if f.db != nil {
		var contractCode string
		query := "SELECT contract FROM contracts WHERE address = ? AND contract IS NOT NULL AND contract != ''"
		err := f.db.QueryRowContext(ctx, query, address).Scan(&contractCode)
		if err == nil && contractCode != "" {
			fmt.Println("  ✓ 从数据库读取合约代码")
			return contractCode, nil
		}
		if err != nil && err != sql.ErrNoRows {
			return "", fmt.Errorf("查询合约代码失败: %w", err)
		}
	}

	// 回退为从链上读取字节码
	if f.client == nil {
		return "", fmt.Errorf("合约 %s 不在数据库中，且 RPC 未配置，无法回退获取字节码", address)
	}

	fmt.Println("  ↓ 合约不在数据库中，从链上读取字节码...")
	codeBytes, err := f.client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return "", fmt.Errorf("获取链上字节码失败: %w", err)
	}

	if len(codeBytes) == 0 {
		return "", fmt.Errorf("地址 %s 无合约代码", address)
	}

	return fmt.Sprintf("0x%x", codeBytes), nil
}

// IsOnlyBytecode 检查是否为纯字节码（未开源）
func IsOnlyBytecode(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) < 10 {
		return true
	}
	if !strings.HasPrefix(code, "0x") {
		// 如果不是 0x 开头，认为是源码
		return false
	}
	for _, c := range code[2:] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// Close 关闭链上连接
func (f *Fetcher) Close() {
	if f.client != nil {
		f.client.Close()
	}
}
