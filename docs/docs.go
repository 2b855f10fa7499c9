// Package docs holds the OpenAPI description served under /swagger/ when
// promptd is built with -tags=swagger. Regenerate with `swag init -g
// cmd/promptd/docs.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/infer": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/x-ndjson"],
                "tags": ["inference"],
                "summary": "Stream inference",
                "parameters": [
                    {"description": "Inference request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.InferRequest"}}
                ],
                "responses": {
                    "200": {"description": "NDJSON token lines followed by a done line", "schema": {"$ref": "#/definitions/types.DoneLine"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/prompt": {
            "post": {
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["inference"],
                "summary": "Generate text from a form prompt",
                "parameters": [
                    {"type": "string", "description": "Prompt text", "name": "prompt", "in": "formData", "required": true},
                    {"type": "string", "description": "Model id", "name": "model", "in": "formData"},
                    {"type": "integer", "description": "Token limit", "name": "max_tokens", "in": "formData"},
                    {"type": "number", "description": "Sampling temperature", "name": "temperature", "in": "formData"},
                    {"type": "integer", "description": "Top-k", "name": "top_k", "in": "formData"},
                    {"type": "number", "description": "Top-p", "name": "top_p", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.InferenceResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/requests/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["requests"],
                "summary": "Request status",
                "parameters": [{"type": "string", "description": "Request id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.RequestStatus"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["requests"],
                "summary": "Cancel a request",
                "parameters": [{"type": "string", "description": "Request id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.RequestStatus"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/models": {
            "get": {
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "List models",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}}
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Service status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        }
    },
    "definitions": {
        "types.InferRequest": {
            "type": "object",
            "properties": {
                "model": {"type": "string", "example": "tinyllama-q4.gguf"},
                "prompt": {"type": "string", "example": "Write a haiku about the ocean."},
                "max_tokens": {"type": "integer", "example": 128},
                "temperature": {"type": "number", "example": 0.7},
                "top_p": {"type": "number", "example": 0.9},
                "top_k": {"type": "integer", "example": 40},
                "stop": {"type": "array", "items": {"type": "string"}},
                "seed": {"type": "integer", "example": 42},
                "repeat_penalty": {"type": "number", "example": 1.1}
            }
        },
        "types.InferenceResult": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "model": {"type": "string"},
                "text": {"type": "string"},
                "tokens": {"type": "integer"},
                "stop_reason": {"type": "string", "example": "end-of-sequence"},
                "error": {"type": "string"},
                "duration_ms": {"type": "integer"}
            }
        },
        "types.DoneLine": {
            "type": "object",
            "properties": {
                "done": {"type": "boolean"},
                "id": {"type": "string"},
                "text": {"type": "string"},
                "tokens": {"type": "integer"},
                "stop_reason": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "types.RequestStatus": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "model": {"type": "string"},
                "state": {"type": "string", "example": "running"},
                "submitted_unix": {"type": "integer"},
                "started_unix": {"type": "integer"},
                "finished_unix": {"type": "integer"},
                "result": {"$ref": "#/definitions/types.InferenceResult"}
            }
        },
        "types.Model": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "path": {"type": "string"},
                "quant": {"type": "string"},
                "family": {"type": "string"},
                "loaded": {"type": "boolean"}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {"models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}}
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string"},
                "backend": {"type": "string"},
                "backend_available": {"type": "boolean"},
                "queue_len": {"type": "integer"},
                "running": {"type": "integer"},
                "max_queue_depth": {"type": "integer"},
                "completed_total": {"type": "integer"},
                "cancelled_total": {"type": "integer"},
                "failed_total": {"type": "integer"},
                "overloaded_total": {"type": "integer"}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "promptd API",
	Description:      "HTTP API for local LLM inference.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
