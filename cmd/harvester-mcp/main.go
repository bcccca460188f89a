// harvester-mcp is a stdio MCP server bridging MCP tool calls to a
// running harvester HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// scrapeRequest mirrors the harvester API request model.
type scrapeRequest struct {
	URL            string `json:"url"`
	ExtractionSpec string `json:"extraction_spec"`
	Timeout        int    `json:"timeout,omitempty"`
	MaxAge         int    `json:"max_age,omitempty"`
}

// scrapeResponse mirrors the harvester API response model.
type scrapeResponse struct {
	Success     bool            `json:"success"`
	Payload     json.RawMessage `json:"payload"`
	Suggestions []string        `json:"suggestions"`
	Metadata    *struct {
		RequestID        string `json:"request_id"`
		ProcessingTimeMs int64  `json:"processing_time_ms"`
		ElementsFound    int    `json:"elements_found"`
		ExtractionMethod string `json:"extraction_method"`
		Attempts         int    `json:"attempts"`
		StrategyUsed     string `json:"strategy_used"`
	} `json:"metadata"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("HARVESTER_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("HARVESTER_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "HARVESTER_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"harvester",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scrapeTool := mcp.NewTool("scrape",
		mcp.WithDescription("Scrape a web page with adaptive anti-detection strategies and extract data matching a free-text specification. Handles JavaScript-heavy pages, bot walls, and captchas automatically."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to scrape"),
		),
		mcp.WithString("extraction_spec",
			mcp.Required(),
			mcp.Description("What to extract, in plain words ('product prices', 'all links', 'article text') or a CSS selector"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Overall call timeout in seconds (default: 90, max: 300)"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept a cached result no older than this many seconds (default: 0, always scrape fresh)"),
		),
	)

	s.AddTool(scrapeTool, handleScrape(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleScrape(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 320 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		spec, err := request.RequireString("extraction_spec")
		if err != nil {
			return mcp.NewToolResultError("extraction_spec is required"), nil
		}

		reqBody := scrapeRequest{
			URL:            url,
			ExtractionSpec: spec,
			Timeout:        request.GetInt("timeout", 0),
			MaxAge:         request.GetInt("max_age", 0),
		}

		body, err := json.Marshal(reqBody)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal request: %v", err)), nil
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/v1/scrape", bytes.NewReader(body))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-API-Key", apiKey)

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		var scrapeResp scrapeResponse
		if err := json.Unmarshal(respBody, &scrapeResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !scrapeResp.Success {
			errMsg := "scrape failed"
			if scrapeResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", scrapeResp.Error.Code, scrapeResp.Error.Message)
			}
			for _, s := range scrapeResp.Suggestions {
				errMsg += "\n- " + s
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		payload, err := json.MarshalIndent(scrapeResp.Payload, "", "  ")
		if err != nil {
			payload = scrapeResp.Payload
		}

		result := string(payload)
		if m := scrapeResp.Metadata; m != nil {
			result += fmt.Sprintf("\n\n---\nStrategy: %s | Attempts: %d | Method: %s | %dms",
				m.StrategyUsed, m.Attempts, m.ExtractionMethod, m.ProcessingTimeMs)
		}
		return mcp.NewToolResultText(result), nil
	}
}
