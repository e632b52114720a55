package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"browsermcp/internal/browser"
)

type invokeRequest struct {
	Tool      string         `json:"tool" binding:"required"`
	Arguments map[string]any `json:"arguments"`
}

func (r *invokeRequest) stringArg(name string) string {
	if v, ok := r.Arguments[name].(string); ok {
		return v
	}
	return ""
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	binary := "dry-run"
	if !s.opts.DryRun {
		binary = "unavailable"
		if s.opts.LocateBrowser != nil {
			if path, err := s.opts.LocateBrowser(); err == nil {
				binary = path
			} else {
				// A missing binary is not fatal; the next invoke will try to
				// fetch one.
				status = "degraded"
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"service":        serverName,
		"version":        serverVersion,
		"browser_binary": binary,
		"uptime_seconds": math.Round(time.Since(s.startTime).Seconds()*100) / 100,
	})
}

func (s *Server) handleSchema(c *gin.Context) {
	c.JSON(http.StatusOK, manifest())
}

// handleManifest serves the same discovery document as /mcp/schema. Some
// clients probe the root with POST before reading the schema path.
func (s *Server) handleManifest(c *gin.Context) {
	c.JSON(http.StatusOK, manifest())
}

// handleLive emits a per-request manifest URL with a cache-busting nonce, for
// clients that cache discovery documents too aggressively.
func (s *Server) handleLive(c *gin.Context) {
	nonce := uuid.NewString()[:8]
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"nonce":        nonce,
		"manifest_url": fmt.Sprintf("%s://%s/?v=%s", scheme, c.Request.Host, nonce),
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleInvoke(c *gin.Context) {
	var req invokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be JSON with a \"tool\" field"})
		return
	}
	switch req.Tool {
	case toolOpenPage, toolClick, toolGetText, toolScreenshot:
	default:
		// Reject before acquiring so a typo never triggers a bootstrap.
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%v: %q", errUnknownTool, req.Tool)})
		return
	}

	session, err := s.provider.Acquire(c.Request.Context())
	if err != nil {
		s.logger.Error("session acquisition failed", "tool", req.Tool, "error", err)
		s.writeError(c, err)
		return
	}

	result, err := s.dispatch(c, session, &req)
	if err != nil {
		if errors.Is(err, errUnknownTool) || errors.Is(err, errMissingArgument) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, browser.ErrSessionDead) || errors.Is(err, browser.ErrActionTimeout) {
			// A dead process or a timed-out action leaves the session in an
			// ambiguous state; drop it so the next invoke bootstraps fresh.
			s.provider.Invalidate(session)
		}
		s.logger.Warn("tool invocation failed", "tool", req.Tool, "error", err)
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tool": req.Tool, "result": result})
}

var (
	errUnknownTool     = errors.New("unknown tool")
	errMissingArgument = errors.New("missing required argument")
)

// dispatch maps a tool invocation onto session actions. Tools other than
// browser_open_page accept an optional url and navigate first when given one.
func (s *Server) dispatch(c *gin.Context, session browser.Session, req *invokeRequest) (gin.H, error) {
	ctx := c.Request.Context()
	url := req.stringArg("url")

	navigate := func() error {
		if url == "" {
			return nil
		}
		_, err := session.Open(ctx, url)
		return err
	}

	switch req.Tool {
	case toolOpenPage:
		if url == "" {
			return nil, fmt.Errorf("%w: url", errMissingArgument)
		}
		title, err := session.Open(ctx, url)
		if err != nil {
			return nil, err
		}
		return gin.H{"url": url, "title": title}, nil

	case toolClick:
		selector := req.stringArg("selector")
		if selector == "" {
			return nil, fmt.Errorf("%w: selector", errMissingArgument)
		}
		if err := navigate(); err != nil {
			return nil, err
		}
		if err := session.Click(ctx, selector); err != nil {
			return nil, err
		}
		return gin.H{"clicked": selector}, nil

	case toolGetText:
		if err := navigate(); err != nil {
			return nil, err
		}
		selector := req.stringArg("selector")
		text, err := session.Text(ctx, selector)
		if err != nil {
			return nil, err
		}
		if selector == "" {
			selector = "body"
		}
		return gin.H{"selector": selector, "text": text}, nil

	case toolScreenshot:
		if err := navigate(); err != nil {
			return nil, err
		}
		png, err := session.Screenshot(ctx)
		if err != nil {
			return nil, err
		}
		return gin.H{
			"format": "png",
			"base64": base64.StdEncoding.EncodeToString(png),
		}, nil
	}

	return nil, fmt.Errorf("%w: %q", errUnknownTool, req.Tool)
}

// writeError maps classified browser errors onto HTTP statuses. Provisioning
// failures are 503 so orchestrators retry elsewhere; slow pages are 504.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, browser.ErrActionTimeout):
		status, kind = http.StatusGatewayTimeout, "action_timeout"
	case errors.Is(err, browser.ErrBinaryNotFound):
		status, kind = http.StatusServiceUnavailable, "binary_not_found"
	case errors.Is(err, browser.ErrFetchFailed):
		status, kind = http.StatusServiceUnavailable, "fetch_failed"
	case errors.Is(err, browser.ErrVersionMismatch):
		status, kind = http.StatusServiceUnavailable, "version_mismatch"
	case errors.Is(err, browser.ErrLaunchFailed):
		status, kind = http.StatusServiceUnavailable, "launch_failed"
	case errors.Is(err, browser.ErrSessionDead):
		status, kind = http.StatusInternalServerError, "session_dead"
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}
