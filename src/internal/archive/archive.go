package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/admi-n/solidity-Prospector/src/internal/analysis"
)

// Archive 将分析案例归档到 Postgres，用于跨案例查询和回溯。
// 归档失败只记日志，不影响分析流程。
type Archive struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS analysis_cases (
	id BIGSERIAL PRIMARY KEY,
	case_name TEXT NOT NULL,
	contract_address TEXT,
	goal TEXT,
	status TEXT NOT NULL,
	iterations_performed INT NOT NULL,
	report JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analysis_iterations (
	id BIGSERIAL PRIMARY KEY,
	case_id BIGINT NOT NULL REFERENCES analysis_cases(id) ON DELETE CASCADE,
	iteration INT NOT NULL,
	vulnerability_found BOOLEAN NOT NULL,
	goal_met BOOLEAN NOT NULL,
	confidence TEXT,
	detail JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_cases_name ON analysis_cases(case_name);
`

// New 连接 Postgres 并确保归档表存在。dsn 为空时返回 nil Archive（禁用归档）
func New(ctx context.Context, dsn string, log *zap.Logger) (*Archive, error) {
	if dsn == "" {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse archive dsn: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect archive db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping archive db: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}

	return &Archive{pool: pool, log: log}, nil
}

// SaveCase 归档一个完整案例及其所有迭代记录
func (a *Archive) SaveCase(ctx context.Context, caseName, address, goal string, report *analysis.FinalReport) error {
	if a == nil || a.pool == nil {
		return nil
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var caseID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO analysis_cases (case_name, contract_address, goal, status, iterations_performed, report)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		caseName, address, goal, report.Status, report.IterationsPerformed, reportJSON,
	).Scan(&caseID)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}

	for i := range report.AllFindings {
		r := &report.AllFindings[i]

		detail, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal iteration %d: %w", r.Iteration, err)
		}

		vulnFound := r.Action != nil && r.Action.VulnerabilityFound
		goalMet := r.Reflection != nil && r.Reflection.GoalMet
		confidence := ""
		if r.Action != nil {
			confidence = r.Action.Confidence
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO analysis_iterations (case_id, iteration, vulnerability_found, goal_met, confidence, detail)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			caseID, r.Iteration, vulnFound, goalMet, confidence, detail,
		)
		if err != nil {
			return fmt.Errorf("insert iteration %d: %w", r.Iteration, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}

	a.log.Info("case archived",
		zap.String("case", caseName),
		zap.Int64("case_id", caseID),
		zap.Int("iterations", len(report.AllFindings)))

	return nil
}

// Close 关闭连接池
func (a *Archive) Close() {
	if a != nil && a.pool != nil {
		a.pool.Close()
	}
}
