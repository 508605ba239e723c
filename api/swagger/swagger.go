package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "UniShare API",
        "description": "Resource sharing backend for university course material",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Login and identity"},
        {"name": "Catalog", "description": "Subjects and academic years"},
        {"name": "Resources", "description": "Course material uploads and downloads"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and receive an access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Return the verified identity behind the bearer token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Missing or invalid token"}
                }
            }
        },
        "/subjects": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List all subjects",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/academic-years": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List academic years, most recent first",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resources": {
            "get": {
                "tags": ["Resources"],
                "summary": "List all resources, newest first",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Resources"],
                "summary": "Create an external-link resource",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateLinkResourceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation or resolution failure"}
                }
            }
        },
        "/resources/latest": {
            "get": {
                "tags": ["Resources"],
                "summary": "List the three newest resources",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resources/facets": {
            "get": {
                "tags": ["Resources"],
                "summary": "Derive filter facets from the resource list",
                "parameters": [
                    {"name": "course", "in": "query", "type": "string"},
                    {"name": "unit", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resources/file": {
            "post": {
                "tags": ["Resources"],
                "summary": "Upload a PDF resource",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "title", "in": "formData", "required": true, "type": "string"},
                    {"name": "description", "in": "formData", "required": true, "type": "string"},
                    {"name": "subject_code", "in": "formData", "required": true, "type": "string"},
                    {"name": "start_year", "in": "formData", "required": true, "type": "integer"},
                    {"name": "end_year", "in": "formData", "required": true, "type": "integer"},
                    {"name": "unit_number", "in": "formData", "type": "integer"},
                    {"name": "resource_type", "in": "formData", "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation or resolution failure"}
                }
            }
        },
        "/resources/signed-url/{id}": {
            "get": {
                "tags": ["Resources"],
                "summary": "Issue a time-limited download URL for a file resource",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SignedURLResponse"}},
                    "404": {"description": "Resource not found"},
                    "410": {"description": "Resource deleted"}
                }
            }
        },
        "/resources/{id}/download": {
            "get": {
                "tags": ["Resources"],
                "summary": "Download a stored file via signed token",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "401": {"description": "Expired or invalid token"},
                    "410": {"description": "Resource deleted"}
                }
            }
        },
        "/resources/{id}": {
            "put": {
                "tags": ["Resources"],
                "summary": "Update a resource's title and description",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateResourceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the contributor or an admin"},
                    "404": {"description": "Resource not found"}
                }
            },
            "delete": {
                "tags": ["Resources"],
                "summary": "Soft-delete a resource",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the contributor or an admin"},
                    "404": {"description": "Resource not found"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateLinkResourceRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "external_url": {"type": "string"},
                "subject_code": {"type": "string"},
                "start_year": {"type": "integer"},
                "end_year": {"type": "integer"},
                "unit_number": {"type": "integer"},
                "resource_type": {"type": "string"}
            },
            "required": ["title", "description", "external_url", "subject_code", "start_year", "end_year"]
        },
        "UpdateResourceRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"}
            }
        },
        "Resource": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "kind": {"type": "string", "enum": ["file", "external_link"]},
                "resource_type": {"type": "string"},
                "url": {"type": "string"},
                "file_path": {"type": "string"},
                "subject_id": {"type": "integer"},
                "offering_id": {"type": "integer"},
                "unit_id": {"type": "integer"},
                "contributor_id": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "SignedURLResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "signedUrl": {"type": "string"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {"type": "object"},
                "error": {"type": "string"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
