package server

import (
	"runtime"

	"github.com/gin-gonic/gin"
)

const (
	serverName        = "browsermcp"
	serverDescription = "MCP server providing headless browser automation."
	serverVersion     = "1.0.0"
	schemaVersion     = "2025-10-01"
)

// Tool names accepted by /mcp/invoke.
const (
	toolOpenPage   = "browser_open_page"
	toolClick      = "browser_click"
	toolGetText    = "browser_get_text"
	toolScreenshot = "browser_screenshot"
)

func toolSchemas() []gin.H {
	return []gin.H{
		{
			"name":        toolOpenPage,
			"description": "Open a URL in a headless browser and return the page title.",
			"parameters": gin.H{
				"type": "object",
				"properties": gin.H{
					"url": gin.H{"type": "string"},
				},
				"required": []string{"url"},
			},
		},
		{
			"name":        toolClick,
			"description": "Click the first element matching a CSS selector, optionally navigating to a URL first.",
			"parameters": gin.H{
				"type": "object",
				"properties": gin.H{
					"url":      gin.H{"type": "string"},
					"selector": gin.H{"type": "string"},
				},
				"required": []string{"selector"},
			},
		},
		{
			"name":        toolGetText,
			"description": "Extract visible text from the page, optionally navigating to a URL first. Defaults to the page body.",
			"parameters": gin.H{
				"type": "object",
				"properties": gin.H{
					"url":      gin.H{"type": "string"},
					"selector": gin.H{"type": "string"},
				},
			},
		},
		{
			"name":        toolScreenshot,
			"description": "Capture a PNG screenshot of the page, optionally navigating to a URL first. Returns base64 data.",
			"parameters": gin.H{
				"type": "object",
				"properties": gin.H{
					"url": gin.H{"type": "string"},
				},
			},
		},
	}
}

// manifest is the self-contained MCP discovery document served at / and
// /mcp/schema. Shape follows what the agent-orchestration client expects.
func manifest() gin.H {
	return gin.H{
		"version": schemaVersion,
		"type":    "mcp_server",
		"server_info": gin.H{
			"type":        "mcp_server",
			"name":        serverName,
			"description": serverDescription,
			"version":     serverVersion,
			"runtime":     runtime.Version(),
			"capabilities": gin.H{
				"invocation": true,
				"streaming":  false,
				"multi_tool": true,
			},
		},
		"tools": toolSchemas(),
	}
}
