// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/server/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["auth"],
                "summary": "Login",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handler.loginRequest"}}],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/auth/register": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["auth"],
                "summary": "Register a viewer account",
                "responses": {"201": {"description": "Created"}, "409": {"description": "Conflict"}, "422": {"description": "Unprocessable Entity"}}
            }
        },
        "/v1/clients/{client_id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["clients"],
                "summary": "Get a client record",
                "parameters": [{"type": "string", "name": "client_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/v1/clients/{client_id}/assignment": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["assignments"],
                "summary": "Get the client's current assignment",
                "parameters": [{"type": "string", "name": "client_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["assignments"],
                "summary": "Assign a sector to a client",
                "parameters": [
                    {"type": "string", "name": "client_id", "in": "path", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handler.assignRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "422": {"description": "Unprocessable Entity"}}
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["assignments"],
                "summary": "Unassign the client's sector",
                "parameters": [{"type": "string", "name": "client_id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/v1/clients/{client_id}/messages": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["messages"],
                "summary": "Append a chat message",
                "parameters": [{"type": "string", "name": "client_id", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "422": {"description": "Unprocessable Entity"}}
            }
        },
        "/v1/clients/{client_id}/messages/unread": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["messages"],
                "summary": "List unread messages for the caller",
                "parameters": [{"type": "string", "name": "client_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/clients/{client_id}/stream": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["text/event-stream"],
                "tags": ["stream"],
                "summary": "Stream assignment and message pushes",
                "parameters": [{"type": "string", "name": "client_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/messages/read": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["messages"],
                "summary": "Mark messages read",
                "responses": {"204": {"description": "No Content"}, "422": {"description": "Unprocessable Entity"}}
            }
        },
        "/v1/presence/heartbeat": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["presence"],
                "summary": "Record a viewer heartbeat",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/v1/presence/{viewer_id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["presence"],
                "summary": "Look up a viewer's presence",
                "parameters": [{"type": "string", "name": "viewer_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "handler.assignRequest": {
            "type": "object",
            "required": ["sector_id", "sector_name"],
            "properties": {"sector_id": {"type": "string"}, "sector_name": {"type": "string"}}
        },
        "handler.loginRequest": {
            "type": "object",
            "required": ["username", "password"],
            "properties": {"username": {"type": "string"}, "password": {"type": "string"}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Portal Sync API",
	Description:      "Sector assignments, unread chat notifications and presence for the client portal.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
