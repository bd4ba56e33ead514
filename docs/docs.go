// Package docs holds the OpenAPI description served at /docs.
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
        "/auth/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Register a new user",
                "parameters": [
                    {"in": "body", "name": "input", "required": true, "schema": {"$ref": "#/definitions/httpserver.registerRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/service.TokenResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Login",
                "parameters": [
                    {"in": "body", "name": "input", "required": true, "schema": {"$ref": "#/definitions/httpserver.loginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.TokenResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Get Current User",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.User"}}
                }
            }
        },
        "/tour/leads": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["tour"],
                "summary": "List tour leads",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.leadsResponse"}}
                }
            }
        },
        "/tour/request": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["tour"],
                "summary": "Request a tour",
                "parameters": [
                    {"in": "body", "name": "input", "required": true, "schema": {"$ref": "#/definitions/httpserver.tourRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httpserver.leadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpserver.envelope"}}
                }
            }
        },
        "/tour/claim-tour/{id}": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["tour"],
                "summary": "Claim a tour",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.envelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpserver.envelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/httpserver.envelope"}}
                }
            }
        },
        "/tour/reject-tour/{id}": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["tour"],
                "summary": "Reject a tour",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.envelope"}}
                }
            }
        },
        "/tour/update-status/{id}": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["tour"],
                "summary": "Update tour status",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"in": "body", "name": "input", "required": true, "schema": {"$ref": "#/definitions/httpserver.updateStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.envelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/httpserver.envelope"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "List notifications",
                "parameters": [
                    {"type": "boolean", "name": "unread", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.notificationsResponse"}}
                }
            }
        },
        "/notifications/{id}/read": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "tags": ["notifications"],
                "summary": "Set notification read state",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"in": "body", "name": "input", "required": true, "schema": {"$ref": "#/definitions/httpserver.markReadRequest"}}
                ],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/notifications/read-all": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Mark all notifications read",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "integer"}}}
                }
            }
        }
    },
    "definitions": {
        "domain.User": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "username": {"type": "string"},
                "email": {"type": "string"},
                "role": {"type": "string"},
                "isActive": {"type": "boolean"},
                "createdAt": {"type": "string"}
            }
        },
        "domain.Lead": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "postId": {"type": "integer"},
                "buyerId": {"type": "integer"},
                "agentId": {"type": "integer"},
                "date": {"type": "string"},
                "time": {"type": "string"},
                "status": {"type": "string"},
                "bookingStatus": {"type": "string"},
                "expiredStatus": {"type": "boolean"},
                "timerExpiresAt": {"type": "string"},
                "createdAt": {"type": "string"},
                "updatedAt": {"type": "string"},
                "activeLead": {"type": "boolean"}
            }
        },
        "domain.Notification": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "userId": {"type": "integer"},
                "type": {"type": "string"},
                "title": {"type": "string"},
                "message": {"type": "string"},
                "metadata": {"type": "object"},
                "isRead": {"type": "boolean"},
                "createdAt": {"type": "string"}
            }
        },
        "httpserver.envelope": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "httpserver.leadsResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "leads": {"type": "array", "items": {"$ref": "#/definitions/domain.Lead"}}
            }
        },
        "httpserver.leadResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "lead": {"$ref": "#/definitions/domain.Lead"}
            }
        },
        "httpserver.notificationsResponse": {
            "type": "object",
            "properties": {
                "notifications": {"type": "array", "items": {"$ref": "#/definitions/domain.Notification"}}
            }
        },
        "httpserver.registerRequest": {
            "type": "object",
            "required": ["username", "password"],
            "properties": {
                "username": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "role": {"type": "string", "enum": ["buyer", "agent", "creator"]}
            }
        },
        "httpserver.loginRequest": {
            "type": "object",
            "required": ["username", "password"],
            "properties": {
                "username": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "httpserver.tourRequest": {
            "type": "object",
            "required": ["postId", "date", "time"],
            "properties": {
                "postId": {"type": "integer"},
                "date": {"type": "string", "example": "2026-11-02"},
                "time": {"type": "string", "example": "10:30"}
            }
        },
        "httpserver.updateStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string"}
            }
        },
        "httpserver.markReadRequest": {
            "type": "object",
            "required": ["isRead"],
            "properties": {
                "isRead": {"type": "boolean"}
            }
        },
        "service.TokenResponse": {
            "type": "object",
            "properties": {
                "accessToken": {"type": "string"},
                "tokenType": {"type": "string"},
                "user": {"$ref": "#/definitions/domain.User"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "leaddesk API",
	Description:      "Tour lead coordination: claim windows, expiry, chat and notifications.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
