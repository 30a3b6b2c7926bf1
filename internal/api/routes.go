// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

// Package api serves the authority store over HTTP so several consoles can
// share one database and hosts can fetch certificates with their token.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/toeirei/keymaster-ca/internal/actions"
	"github.com/toeirei/keymaster-ca/internal/logging"
)

// Backend is everything the API needs from the store.
type Backend interface {
	actions.Remote
	PublicKeys(ctx context.Context, ids []string) ([]string, error)
	SignHostCertificate(ctx context.Context, token, hostPublicKey string, hostnames []string) (string, error)
}

// NewRouter returns a gin engine with every route registered.
func NewRouter(b Backend) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	SetupRoutes(router, b)
	return router
}

// SetupRoutes registers the API on router.
func SetupRoutes(router *gin.Engine, b Backend) {
	router.GET("/health", HealthCheck)

	authority := router.Group("/authority")
	{
		authority.GET("", ListAuthorities(b))
		authority.POST("", CreateAuthority(b))
		authority.PUT("/:id", UpdateAuthority(b))
		authority.DELETE("/:id", DeleteAuthority(b))
		authority.POST("/:id/token", CreateHostToken(b))
		authority.DELETE("/:id/token/:token", DeleteHostToken(b))
	}

	node := router.Group("/node")
	{
		node.GET("", ListNodes(b))
		node.POST("", CreateNode(b))
		node.PUT("/:id", UpdateNode(b))
		node.DELETE("/:id", DeleteNode(b))
	}

	router.GET("/ssh_public_key/:ids", PublicKeys(b))
	router.POST("/ssh_host_certificate", SignHostCertificate(b))
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debugf("api: %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
