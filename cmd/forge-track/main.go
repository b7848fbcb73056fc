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

package main

import (
	"net/http"
	"os"
	"strconv"

	"github.com/forge-track/forge-track/cmd/forge-track/database"
	"github.com/forge-track/forge-track/cmd/forge-track/helpers"
	"github.com/forge-track/forge-track/cmd/forge-track/services"
	"github.com/forge-track/forge-track/internal"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"go.uber.org/zap"
)

func main() {
	helpers.InitLogging()
	InitPrometheus()
	db := database.GetOrInit()
	InitHealthCheck(db)

	go SetupRestAPI(loadAccounts(), services.NewService(db))

	shutdown := internal.NewGracefulShutdown(func() error {
		db.Shutdown()
		return nil
	})
	shutdown.Wait()
	os.Exit(0)
}

func InitPrometheus() {
	metricsPath := "/metrics"
	metricsPort := ":2112"
	zap.S().Debugf("Setting up metrics %s %v", metricsPath, metricsPort)

	http.Handle(metricsPath, promhttp.Handler())
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe(metricsPort, nil)
		if err != nil {
			zap.S().Errorf("Error starting metrics: %s", err)
		}
	}()
}

func InitHealthCheck(db *database.Connection) {
	zap.S().Debugf("Setting up healthcheck")

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000000))
	health.AddReadinessCheck("database", db.GetHealthCheck())
	health.AddLivenessCheck("database", db.GetHealthCheck())
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe("0.0.0.0:8086", health)
		if err != nil {
			zap.S().Errorf("Error starting healthcheck: %s", err)
		}
	}()
}

// loadAccounts reads the per-tenant BasicAuth credentials from
// CUSTOMER_NAME_n/CUSTOMER_PASSWORD_n pairs, plus the FORGETRACK_USER
// service account.
func loadAccounts() gin.Accounts {
	accounts := gin.Accounts{}
	for i := 1; i <= 100; i++ {
		tempUser := os.Getenv("CUSTOMER_NAME_" + strconv.Itoa(i))
		tempPassword := os.Getenv("CUSTOMER_PASSWORD_" + strconv.Itoa(i))
		if tempUser != "" && tempPassword != "" {
			zap.S().Infof("Added account for %s", tempUser)
			accounts[tempUser] = tempPassword
		}
	}

	restUser, _ := env.GetAsString("FORGETRACK_USER", false, "forgetrack") //nolint:errcheck
	restPassword, err := env.GetAsString("FORGETRACK_PASSWORD", true, "")
	if err != nil {
		zap.S().Fatalf("Failed to get FORGETRACK_PASSWORD from env: %s", err)
	}
	accounts[restUser] = restPassword
	return accounts
}
