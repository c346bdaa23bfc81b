// Package docs registers the OpenAPI document served by swagger-ui.
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
        "/webhook/inbound": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhook"],
                "summary": "Receive an inbound message",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.InboundEventRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/webhook/receipts": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhook"],
                "summary": "Receive a delivery receipt",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.ReceiptRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/conversations": {
            "get": {
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "List live conversations",
                "parameters": [{"type": "integer", "in": "query", "name": "adminId"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}}
            }
        },
        "/conversations/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Get a conversation",
                "parameters": [{"type": "string", "in": "path", "name": "id", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/conversations/{id}/messages": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Send an operator message",
                "parameters": [
                    {"type": "string", "in": "path", "name": "id", "required": true},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.SendMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/conversations/{id}/assign": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Assign an operator",
                "parameters": [
                    {"type": "string", "in": "path", "name": "id", "required": true},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.AssignAdminRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}}
            }
        },
        "/conversations/{id}/end": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "End a conversation",
                "parameters": [
                    {"type": "string", "in": "path", "name": "id", "required": true},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.EndConversationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/conversations/{id}/resend-menu": {
            "post": {
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Resend the department menu",
                "parameters": [{"type": "string", "in": "path", "name": "id", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}}
            }
        },
        "/conversations/{id}/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Conversation delivery health",
                "parameters": [{"type": "string", "in": "path", "name": "id", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}}
            }
        },
        "/health/deliveries": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Correlate delivery status",
                "parameters": [
                    {"type": "string", "in": "query", "name": "messageId"},
                    {"type": "string", "in": "query", "name": "conversationId"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}}
            }
        },
        "/health/fleet": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Fleet delivery health",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}}
            }
        },
        "/phone/variants": {
            "get": {
                "produces": ["application/json"],
                "tags": ["phone"],
                "summary": "Phone lookup variants",
                "parameters": [{"type": "string", "in": "query", "name": "phone", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/support/messages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["support"],
                "summary": "List support messages",
                "parameters": [
                    {"type": "integer", "in": "query", "name": "clientId", "required": true},
                    {"type": "integer", "in": "query", "name": "limit"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["support"],
                "summary": "Send a support message",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.SupportMessageRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/models.APIResponse"}}}
            }
        },
        "/support/messages/read": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["support"],
                "summary": "Mark support messages as read",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.MarkReadRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}}
            }
        },
        "/support/upload": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["support"],
                "summary": "Upload a support attachment",
                "parameters": [{"type": "file", "in": "formData", "name": "file", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/qrcode-base64": {
            "get": {
                "produces": ["application/json"],
                "tags": ["authentication"],
                "summary": "Get QR Code as base64",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["authentication"],
                "summary": "Check Connection Status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}}
            }
        }
    },
    "definitions": {
        "models.APIResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "message": {"type": "string"},
                "code": {"type": "string"},
                "data": {},
                "timestamp": {"type": "string"}
            }
        },
        "models.InboundEventRequest": {
            "type": "object",
            "properties": {
                "fromPhone": {"type": "string", "example": "5511998765432"},
                "content": {"type": "string", "example": "oi"},
                "messageType": {"type": "string", "example": "text"},
                "providerMessageId": {"type": "string", "example": "3EB0C767D26A1D8E4C2B"}
            }
        },
        "models.ReceiptRequest": {
            "type": "object",
            "properties": {
                "providerMessageId": {"type": "string"},
                "status": {"type": "string", "example": "delivered"}
            }
        },
        "models.SendMessageRequest": {
            "type": "object",
            "properties": {
                "body": {"type": "string"},
                "adminId": {"type": "integer"},
                "isAnonymous": {"type": "boolean"}
            }
        },
        "models.AssignAdminRequest": {
            "type": "object",
            "properties": {"adminId": {"type": "integer"}}
        },
        "models.EndConversationRequest": {
            "type": "object",
            "properties": {"adminId": {"type": "integer"}}
        },
        "models.MessageContent": {
            "type": "object",
            "properties": {
                "kind": {"type": "string", "enum": ["text", "file", "audio"]},
                "text": {"type": "string"},
                "file": {"type": "object"},
                "audio": {"type": "object"}
            }
        },
        "models.SupportMessageRequest": {
            "type": "object",
            "properties": {
                "clientId": {"type": "integer"},
                "adminId": {"type": "integer"},
                "fromClient": {"type": "boolean"},
                "content": {"$ref": "#/definitions/models.MessageContent"}
            }
        },
        "models.MarkReadRequest": {
            "type": "object",
            "properties": {
                "clientId": {"type": "integer"},
                "readerIsClient": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "WhatsApp Router API",
	Description:      "Conversation routing, operator messaging and delivery health for a WhatsApp channel",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
