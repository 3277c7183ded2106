// Package mcp implements the Model Context Protocol server that exposes
// chess boards and the utility toolbox.
//
// Messages are JSON-RPC 2.0, carried either as newline-delimited JSON over
// stdio or as single POST requests over HTTP.
package mcp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the MCP protocol version this implementation supports.
const ProtocolVersion = "2024-11-05"

// JSON-RPC 2.0 version string.
const JSONRPCVersion = "2.0"

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"` // Can be string, number, or null
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification represents a JSON-RPC 2.0 notification (no ID, no response expected).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCP-specific error codes (reserved range: -32000 to -32099).
const (
	ErrCodeToolNotFound     = -32001
	ErrCodeToolExecFailed   = -32002
	ErrCodeResourceNotFound = -32003
	ErrCodePromptNotFound   = -32004
)

func NewParseError(data any) *RPCError {
	return &RPCError{Code: ErrCodeParseError, Message: "Parse error", Data: data}
}

func NewInvalidRequest(data any) *RPCError {
	return &RPCError{Code: ErrCodeInvalidRequest, Message: "Invalid Request", Data: data}
}

func NewMethodNotFound(method string) *RPCError {
	return &RPCError{Code: ErrCodeMethodNotFound, Message: "Method not found", Data: method}
}

func NewInvalidParams(data any) *RPCError {
	return &RPCError{Code: ErrCodeInvalidParams, Message: "Invalid params", Data: data}
}

func NewInternalError(message string) *RPCError {
	return &RPCError{Code: ErrCodeInternalError, Message: message}
}

func NewToolNotFound(toolName string) *RPCError {
	return &RPCError{Code: ErrCodeToolNotFound, Message: fmt.Sprintf("Unknown tool: %s", toolName), Data: toolName}
}

// NewResourceNotFound is returned by resources/read for unknown or
// uncatalogued URIs.
func NewResourceNotFound(uri, message string) *RPCError {
	if message == "" {
		message = fmt.Sprintf("Resource not found: %s", uri)
	}
	return &RPCError{Code: ErrCodeResourceNotFound, Message: message, Data: map[string]string{"uri": uri}}
}

func NewPromptNotFound(name string) *RPCError {
	return &RPCError{Code: ErrCodePromptNotFound, Message: fmt.Sprintf("Unknown prompt: %s", name), Data: name}
}

// InitializeParams contains the client's initialization parameters.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapability   `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// InitializeResult contains the server's initialization response.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapability   `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ClientCapability describes what a client supports.
type ClientCapability struct {
	Roots    *RootsCapability    `json:"roots,omitempty"`
	Sampling *SamplingCapability `json:"sampling,omitempty"`
}

// ServerCapability describes what a server supports.
type ServerCapability struct {
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Tools     *ToolsCapability     `json:"tools,omitempty"`
}

type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type SamplingCapability struct{}

type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ImplementationInfo identifies an MCP implementation.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version"`
}

// Tool defines an MCP tool that can be called.
type Tool struct {
	Name         string        `json:"name"`
	Title        string        `json:"title,omitempty"`
	Description  string        `json:"description"`
	InputSchema  *InputSchema  `json:"inputSchema"`
	OutputSchema *OutputSchema `json:"outputSchema,omitempty"`
}

// OutputSchema defines the JSON Schema for tool output.
// Tools declaring one return structuredContent matching it.
type OutputSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]*PropertySchema `json:"properties,omitempty"`
	Required   []string                   `json:"required,omitempty"`
}

// InputSchema defines the JSON Schema for tool input.
type InputSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]*PropertySchema `json:"properties,omitempty"`
	Required   []string                   `json:"required,omitempty"`
}

// PropertySchema defines a single property in a schema.
type PropertySchema struct {
	Type        any                        `json:"type"` // string, or []string for nullable values
	Description string                     `json:"description,omitempty"`
	Default     any                        `json:"default,omitempty"`
	Minimum     *float64                   `json:"minimum,omitempty"`
	Properties  map[string]*PropertySchema `json:"properties,omitempty"`
	Items       *PropertySchema            `json:"items,omitempty"`
	Required    []string                   `json:"required,omitempty"`
}

// ToolsListResult is the response for tools/list.
type ToolsListResult struct {
	Tools      []Tool  `json:"tools"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// ToolCallParams contains the parameters for a tools/call request.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallResult is the response for tools/call.
type ToolCallResult struct {
	Content           []ContentItem `json:"content"`
	IsError           bool          `json:"isError,omitempty"`
	StructuredContent any           `json:"structuredContent,omitempty"`
}

// ContentItem is one block of a tool result or prompt message. Text blocks
// set Text; image blocks set Data (base64) and MimeType.
type ContentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// TextContent creates a text content item.
func TextContent(text string) ContentItem {
	return ContentItem{Type: "text", Text: text}
}

// ImageContent creates an image content item from raw bytes.
func ImageContent(data []byte, mimeType string) ContentItem {
	return ContentItem{Type: "image", Data: base64.StdEncoding.EncodeToString(data), MimeType: mimeType}
}

// SuccessResult creates a successful tool result with text content.
func SuccessResult(text string) *ToolCallResult {
	return &ToolCallResult{Content: []ContentItem{TextContent(text)}}
}

// ErrorResult creates an error tool result with text content.
func ErrorResult(text string) *ToolCallResult {
	return &ToolCallResult{Content: []ContentItem{TextContent(text)}, IsError: true}
}

// ImageResult creates a successful tool result holding one image.
func ImageResult(data []byte, mimeType string) *ToolCallResult {
	return &ToolCallResult{Content: []ContentItem{ImageContent(data, mimeType)}}
}

// StructuredResult creates a successful tool result with both text content and structured content.
// This is required when a tool defines an outputSchema - the structuredContent field must be populated.
func StructuredResult(textContent string, structured any) *ToolCallResult {
	return &ToolCallResult{
		Content:           []ContentItem{TextContent(textContent)},
		StructuredContent: structured,
	}
}

// Resource describes one concrete readable resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplate describes a family of resources addressed by a URI template.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

type ResourcesListResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor *string    `json:"nextCursor,omitempty"`
}

type ResourceTemplatesListResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
	NextCursor        *string            `json:"nextCursor,omitempty"`
}

type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ResourceContents is the body of a resource. Text resources set Text,
// binary ones set Blob (base64).
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// BlobContents creates binary resource contents from raw bytes.
func BlobContents(uri, mimeType string, data []byte) ResourceContents {
	return ResourceContents{URI: uri, MimeType: mimeType, Blob: base64.StdEncoding.EncodeToString(data)}
}

type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// ResourceUpdatedParams is sent with notifications/resources/updated.
type ResourceUpdatedParams struct {
	URI string `json:"uri"`
}

// Prompt describes a prompt template.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

type PromptsListResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor *string  `json:"nextCursor,omitempty"`
}

type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// PromptMessage is one turn of a rendered prompt.
type PromptMessage struct {
	Role    string      `json:"role"`
	Content ContentItem `json:"content"`
}

type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// NewResponse creates a success response with the given result.
func NewResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id json.RawMessage, err *RPCError) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: err}
}
