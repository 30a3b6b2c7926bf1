// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/toeirei/keymaster-ca/internal/db"
	"github.com/toeirei/keymaster-ca/internal/logging"
	"github.com/toeirei/keymaster-ca/internal/model"
)

// HostCertificateRequest is the body of POST /ssh_host_certificate.
type HostCertificateRequest struct {
	Token     string   `json:"token" binding:"required"`
	PublicKey string   `json:"public_key" binding:"required"`
	Hostnames []string `json:"hostnames" binding:"required,min=1,dive,required"`
}

// StatusFor maps store errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, db.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logging.Errorf("api: %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ListAuthorities(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := b.ListAuthorities(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// CreateAuthority accepts an optional body with initial fields.
func CreateAuthority(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		var initial *model.Authority
		if c.Request.Body != nil && c.Request.ContentLength != 0 {
			var body model.Authority
			err := c.ShouldBindJSON(&body)
			switch {
			case err == nil:
				initial = &body
			case !errors.Is(err, io.EOF):
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
				return
			}
		}
		a, err := b.CreateAuthority(c.Request.Context(), initial)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, a)
	}
}

func UpdateAuthority(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		var a model.Authority
		if err := c.ShouldBindJSON(&a); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		a.ID = c.Param("id")
		saved, err := b.UpdateAuthority(c.Request.Context(), a)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, saved)
	}
}

func DeleteAuthority(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := b.DeleteAuthority(c.Request.Context(), c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func CreateHostToken(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := b.CreateHostToken(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"token": token})
	}
}

func DeleteHostToken(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := b.DeleteHostToken(c.Request.Context(), c.Param("id"), c.Param("token")); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func ListNodes(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := b.ListNodes(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func CreateNode(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		var n model.Node
		if err := c.ShouldBindJSON(&n); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		saved, err := b.CreateNode(c.Request.Context(), n)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, saved)
	}
}

func UpdateNode(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		var n model.Node
		if err := c.ShouldBindJSON(&n); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		n.ID = c.Param("id")
		saved, err := b.UpdateNode(c.Request.Context(), n)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, saved)
	}
}

func DeleteNode(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := b.DeleteNode(c.Request.Context(), c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// PublicKeys serves the public keys of comma separated authority IDs, one
// per line, ready to be appended to known_hosts or TrustedUserCAKeys.
func PublicKeys(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ids []string
		for _, id := range strings.Split(c.Param("ids"), ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no authority id given"})
			return
		}
		keys, err := b.PublicKeys(c.Request.Context(), ids)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.String(http.StatusOK, strings.Join(keys, "\n")+"\n")
	}
}

// SignHostCertificate issues a host certificate to the holder of a host
// token. Unknown tokens are reported as forbidden, not as missing.
func SignHostCertificate(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req HostCertificateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		cert, err := b.SignHostCertificate(c.Request.Context(), req.Token, req.PublicKey, req.Hostnames)
		if errors.Is(err, db.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid host token"})
			return
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"certificate": cert})
	}
}
