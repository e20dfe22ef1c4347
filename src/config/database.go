package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// 数据库默认配置 - 可被 settings.yaml 的 database.dsn 覆盖
const (
	DBHost     = "localhost"
	DBPort     = "3306"
	DBUser     = "root"
	DBPassword = "123456"
	DBName     = "solidity_prospector"
)

// 全局连接池
var DBPool *sql.DB

// GetDatabaseDSN 返回 MySQL DSN，优先级: 环境变量 > settings.yaml > 内置默认
func GetDatabaseDSN() string {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		return dsn
	}

	if globalSettings == nil {
		LoadSettings("")
	}

	if globalSettings != nil && globalSettings.Database.DSN != "" {
		return globalSettings.Database.DSN
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4",
		DBUser, DBPassword, DBHost, DBPort, DBName)
}

// InitDB 初始化 MySQL 连接池并 ping 验证
func InitDB() (*sql.DB, error) {
	db, err := sql.Open("mysql", GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("InitDB: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 验证连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("InitDB ping failed: %w", err)
	}

	DBPool = db
	return db, nil
}

// GetRPCURL 返回配置的以太坊 RPC URL
func GetRPCURL() (string, error) {
	if url := os.Getenv("ETH_RPC_URL"); url != "" {
		return url, nil
	}

	if globalSettings == nil {
		LoadSettings("")
	}

	if globalSettings != nil && globalSettings.RPC.Ethereum != "" {
		return globalSettings.RPC.Ethereum, nil
	}

	return "", fmt.Errorf("RPC URL 未配置：请在 settings.yaml 中设置 rpc.ethereum 或导出 ETH_RPC_URL")
}
