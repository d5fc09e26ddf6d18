// Package docs holds the swagger description of the relay HTTP surface.
package docs

import "github.com/swaggo/swag"

// @title           Kanban Sync Relay API
// @version         1.0
// @description     Realtime relay for kanban board clients and the Telegram notification bot.

// @contact.name   octaview
// @contact.url    t.me/octaview

// @BasePath  /
// @schemes   http

// @tag.name Relay
// @tag.description Board connections and health

// @tag.name Notifications
// @tag.description Telegram notification target

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "octaview", "url": "t.me/octaview"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/ws": {
            "get": {
                "tags": ["Relay"],
                "summary": "Open a board sync connection",
                "parameters": [
                    {"type": "string", "description": "browser or miniApp", "name": "clientType", "in": "query"}
                ],
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Relay"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.HealthResponse"}}
                }
            }
        },
        "/connections": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Relay"],
                "summary": "List connected clients",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.ConnectionsResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/notifications/target": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Get notification chat",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.NotificationTargetResponse"}}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Set notification chat",
                "parameters": [
                    {"description": "Target chat", "name": "request", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/handler.NotificationTargetRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.NotificationTargetResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "handler.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "clients": {"type": "integer"},
                "uptime": {"type": "string"}
            }
        },
        "relay.ConnectionInfo": {
            "type": "object",
            "properties": {
                "clientId": {"type": "string"},
                "clientType": {"type": "string"},
                "connectedAt": {"type": "string"}
            }
        },
        "handler.ConnectionsResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "connections": {"type": "array", "items": {"$ref": "#/definitions/relay.ConnectionInfo"}}
            }
        },
        "handler.NotificationTargetRequest": {
            "type": "object",
            "required": ["chatId"],
            "properties": {"chatId": {"type": "integer"}}
        },
        "handler.NotificationTargetResponse": {
            "type": "object",
            "properties": {
                "chatId": {"type": "integer"},
                "set": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:3001",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Kanban Sync Relay API",
	Description:      "Realtime relay for kanban board clients and the Telegram notification bot.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
