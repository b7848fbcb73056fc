// Copyright 2023 Forge Track Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/EagleChen/mapmutex"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"go.uber.org/zap"
)

// PgxIface is the subset of pgxpool.Pool the repository uses. pgxmock
// implements it for tests.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Connection bundles the pool with the per-workflow mutation lock and the
// template cache.
type Connection struct {
	Db PgxIface

	// WorkflowMutex serializes mutations per item workflow. Cross-workflow
	// operations proceed in parallel.
	WorkflowMutex *mapmutex.Mutex

	templateCache *lru.ARCCache
}

var (
	conn     *Connection
	connOnce sync.Once
)

// GetOrInit connects to PostgreSQL using the POSTGRES_* environment
// variables on first use and returns the shared connection afterwards.
func GetOrInit() *Connection {
	connOnce.Do(func() {
		PQHost, err := env.GetAsString("POSTGRES_HOST", false, "db")
		if err != nil {
			zap.S().Error(err)
		}
		PQPort, err := env.GetAsInt("POSTGRES_PORT", false, 5432)
		if err != nil {
			zap.S().Error(err)
		}
		PQUser, err := env.GetAsString("POSTGRES_USER", true, "")
		if err != nil {
			zap.S().Fatal(err)
		}
		PQPassword, err := env.GetAsString("POSTGRES_PASSWORD", true, "")
		if err != nil {
			zap.S().Fatal(err)
		}
		PQDBName, err := env.GetAsString("POSTGRES_DATABASE", false, "forgetrack")
		if err != nil {
			zap.S().Error(err)
		}

		psqlInfo := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=require",
			PQHost,
			PQPort,
			PQUser,
			PQPassword,
			PQDBName)

		parseConfig, err := pgxpool.ParseConfig(psqlInfo)
		if err != nil {
			zap.S().Fatalf("Failed to parse config: %s", err)
		}

		parseConfig.MinConns = int32(runtime.NumCPU())
		if parseConfig.MinConns < 4 {
			parseConfig.MinConns = 4
		}
		parseConfig.MaxConnIdleTime = 5 * time.Minute
		parseConfig.MaxConnLifetime = 10 * time.Minute

		connCtx, cncl := context.WithTimeout(context.Background(), 5*time.Second)
		defer cncl()
		pool, err := pgxpool.NewWithConfig(connCtx, parseConfig)
		if err != nil {
			zap.S().Fatalf("Failed to open database: %s", err)
		}

		conn = NewConnection(pool)
		go conn.pingDB()
	})
	return conn
}

// NewConnection wraps an existing pool (or a mock) into a Connection
func NewConnection(db PgxIface) *Connection {
	templateCache, err := lru.NewARC(128)
	if err != nil {
		zap.S().Fatalf("Failed to create template cache: %s", err)
	}
	return &Connection{
		Db: db,
		// default configs: maxDelay: 100000000 (0.1 second), baseDelay: 10 nanoseconds
		WorkflowMutex: mapmutex.NewCustomizedMapMutex(800, 100000000, 10, 1.1, 0.2),
		templateCache: templateCache,
	}
}

func (c *Connection) pingDB() {
	for {
		err := c.Db.Ping(context.Background())
		if err != nil {
			zap.S().Errorf("Failed to ping database: %s", err)
		}
		time.Sleep(5 * time.Second)
	}
}

// GetHealthCheck returns a readiness probe backed by a database ping
func (c *Connection) GetHealthCheck() func() error {
	return func() error {
		ctx, cncl := context.WithTimeout(context.Background(), 5*time.Second)
		defer cncl()
		return c.Db.Ping(ctx)
	}
}

// Shutdown closes the underlying pool if there is one
func (c *Connection) Shutdown() {
	if pool, ok := c.Db.(*pgxpool.Pool); ok {
		pool.Close()
	}
}

func get1MinuteContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 1*time.Minute)
}

func rollbackOnError(ctx context.Context, tx pgx.Tx) {
	errR := tx.Rollback(ctx)
	if errR != nil && errR != pgx.ErrTxClosed {
		zap.S().Errorf("Error rolling back transaction: %v", errR)
	}
}
