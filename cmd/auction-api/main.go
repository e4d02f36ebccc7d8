// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/voltgrid/auction-core/pkg/config"
	"github.com/voltgrid/auction-core/pkg/engine"
	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/ledger"
	"github.com/voltgrid/auction-core/pkg/log"
	"github.com/voltgrid/auction-core/pkg/metric"
	"github.com/voltgrid/auction-core/pkg/store"
)

var (
	port    = flag.String("port", "8080", "API server port")
	env     = flag.String("env", "development", "Environment (development/production)")
	dataDir = flag.String("data-dir", "/tmp/auctiond", "Data directory shared with auctiond")
	dbType  = flag.String("db-type", "badger", "Database backend: memory or badger")
)

func main() {
	flag.Parse()

	logger := log.NewWithLevel("info")
	defer logger.Sync()

	st, err := store.New(*dbType, *dataDir)
	if err != nil {
		fmt.Printf("failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	m, err := metric.NewMetrics()
	if err != nil {
		fmt.Printf("failed to create metrics: %v\n", err)
		os.Exit(1)
	}
	cfg := config.NewManager(logger)
	l := ledger.New(logger)
	e := engine.New(logger, m, st, cfg, l)

	router := setupRouter(e)

	srv := &http.Server{
		Addr:    ":" + *port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("failed to start server: %v\n", err)
			os.Exit(1)
		}
	}()

	logger.Info("auction-api listening", "port", *port, "env", *env)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down auction-api")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
}

func setupRouter(e *engine.Engine) *gin.Engine {
	if *env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = []string{"http://localhost:3000", "https://app.voltgrid.example"}
	corsCfg.AllowMethods = []string{"GET", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsCfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy", "time": time.Now().Unix()})
	})

	api := router.Group("/api/v1")
	{
		api.GET("/timeslots", listOpenTimeslots(e))
		api.GET("/timeslots/:epoch", getTimeslotSummary(e))
		api.GET("/timeslots/:epoch/sellers/:seller/allocation", getSellerAllocation(e))
		api.GET("/timeslots/:epoch/buyers/:buyer/allocation", getBuyerAllocation(e))
		api.GET("/timeslots/:epoch/sellers/:seller/slashing", getSlashingState(e))
	}

	return router
}

func parseEpochParam(c *gin.Context) (int64, bool) {
	var epoch int64
	if _, err := fmt.Sscanf(c.Param("epoch"), "%d", &epoch); err != nil {
		c.JSON(400, gin.H{"error": "invalid epoch"})
		return 0, false
	}
	return epoch, true
}

func parseIDParam(c *gin.Context, name string) (ids.ID, bool) {
	id, err := ids.FromString(c.Param(name))
	if err != nil {
		c.JSON(400, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return ids.ID{}, false
	}
	return id, true
}

func listOpenTimeslots(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{"timeslots": e.ListOpenTimeslots()})
	}
}

func getTimeslotSummary(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		epoch, ok := parseEpochParam(c)
		if !ok {
			return
		}
		summary, ok := e.GetTimeslotSummary(epoch)
		if !ok {
			c.JSON(404, gin.H{"error": "timeslot not found"})
			return
		}
		c.JSON(200, summary)
	}
}

func getSellerAllocation(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		epoch, ok := parseEpochParam(c)
		if !ok {
			return
		}
		seller, ok := parseIDParam(c, "seller")
		if !ok {
			return
		}
		alloc, ok := e.GetSellerAllocation(epoch, seller)
		if !ok {
			c.JSON(404, gin.H{"error": "no seller allocation for this timeslot"})
			return
		}
		c.JSON(200, alloc)
	}
}

func getBuyerAllocation(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		epoch, ok := parseEpochParam(c)
		if !ok {
			return
		}
		buyer, ok := parseIDParam(c, "buyer")
		if !ok {
			return
		}
		alloc, ok := e.GetBuyerAllocation(epoch, buyer)
		if !ok {
			c.JSON(404, gin.H{"error": "no buyer allocation for this timeslot"})
			return
		}
		c.JSON(200, alloc)
	}
}

func getSlashingState(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		epoch, ok := parseEpochParam(c)
		if !ok {
			return
		}
		seller, ok := parseIDParam(c, "seller")
		if !ok {
			return
		}
		state, ok := e.GetSlashingState(epoch, seller)
		if !ok {
			c.JSON(404, gin.H{"error": "no slashing state for this seller"})
			return
		}
		c.JSON(200, state)
	}
}
