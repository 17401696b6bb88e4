package api

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the admin API.
func buildOpenAPIDoc() map[string]any {
	bearer := []any{map[string]any{"BearerAuth": []string{}}}

	paths := map[string]any{
		"/healthz": map[string]any{
			"get": map[string]any{
				"operationId": "healthz",
				"summary":     "Service health and activity counters",
				"responses": map[string]any{
					"200": map[string]any{"description": "Service is healthy"},
				},
			},
		},
		"/events": map[string]any{
			"get": map[string]any{
				"operationId": "streamEvents",
				"summary":     "Server-sent event stream of gateway activity",
				"parameters": []any{
					map[string]any{
						"name":        "types",
						"in":          "query",
						"required":    false,
						"description": "Comma-separated event type prefixes to include",
						"schema":      map[string]any{"type": "string"},
					},
					map[string]any{
						"name":     "Last-Event-ID",
						"in":       "header",
						"required": false,
						"schema":   map[string]any{"type": "integer"},
					},
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "text/event-stream of activity events"},
					"401": map[string]any{"description": "Unauthenticated"},
					"403": map[string]any{"description": "Insufficient scope"},
				},
				"security": bearer,
			},
		},
		"/audit/recent": map[string]any{
			"get": map[string]any{
				"operationId": "auditRecent",
				"summary":     "Newest delivery audit records",
				"parameters": []any{
					map[string]any{
						"name":     "limit",
						"in":       "query",
						"required": false,
						"schema":   map[string]any{"type": "integer", "maximum": maxAuditLimit},
					},
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "Audit records, newest first"},
					"401": map[string]any{"description": "Unauthenticated"},
					"403": map[string]any{"description": "Insufficient scope"},
					"404": map[string]any{"description": "Audit trail disabled"},
				},
				"security": bearer,
			},
		},
		"/openapi.json": map[string]any{
			"get": map[string]any{
				"operationId": "openapi",
				"summary":     "This document",
				"responses": map[string]any{
					"200": map[string]any{"description": "OpenAPI 3.1 document"},
				},
				"security": bearer,
			},
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Herald Gateway",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
