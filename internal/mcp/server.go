package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/metrics"
	"github.com/zjrosen/boardwalk/internal/tracing"
)

// ToolHandler handles a tool call. A returned error becomes an isError
// result carrying the error text.
type ToolHandler func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error)

// ResourceHandler reads the resource at uri. Returning an *RPCError sends
// it to the client unchanged.
type ResourceHandler func(ctx context.Context, uri string) (*ResourceContents, error)

// ResourceLister returns the concrete resources currently available.
type ResourceLister func(ctx context.Context) []Resource

// PromptHandler renders a prompt from its arguments.
type PromptHandler func(ctx context.Context, args map[string]string) (*GetPromptResult, error)

type templateEntry struct {
	template ResourceTemplate
	prefix   string
	handler  ResourceHandler
}

type promptEntry struct {
	prompt  Prompt
	handler PromptHandler
}

// Server implements an MCP server over stdio and HTTP.
type Server struct {
	info         ImplementationInfo
	instructions string
	tracer       trace.Tracer
	metrics      *metrics.Metrics

	mu        sync.RWMutex
	tools     map[string]Tool
	handlers  map[string]ToolHandler
	templates []templateEntry
	listers   []ResourceLister
	prompts   map[string]promptEntry

	initialized bool

	writeMu sync.Mutex
	writer  io.Writer

	ctx    context.Context
	cancel context.CancelFunc
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithInstructions sets the server instructions sent during initialization.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithTracer wraps every tool call and resource read in a span.
func WithTracer(tracer trace.Tracer) ServerOption {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// WithMetrics counts tool calls by outcome.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a new MCP server.
func NewServer(name, version string, opts ...ServerOption) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		info:     ImplementationInfo{Name: name, Version: version},
		tools:    make(map[string]Tool),
		handlers: make(map[string]ToolHandler),
		prompts:  make(map[string]promptEntry),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterTool registers a tool with its handler.
func (s *Server) RegisterTool(tool Tool, handler ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[tool.Name] = tool
	s.handlers[tool.Name] = handler
	log.Debug(log.CatMCP, "Registered tool", "name", tool.Name)
}

// RegisterResourceTemplate routes resources/read for every URI starting
// with the template's literal prefix (the part before the first '{').
func (s *Server) RegisterResourceTemplate(tmpl ResourceTemplate, handler ResourceHandler) {
	prefix, _, _ := strings.Cut(tmpl.URITemplate, "{")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, templateEntry{template: tmpl, prefix: prefix, handler: handler})
	// longest prefix wins
	sort.SliceStable(s.templates, func(i, j int) bool {
		return len(s.templates[i].prefix) > len(s.templates[j].prefix)
	})
	log.Debug(log.CatMCP, "Registered resource template", "uriTemplate", tmpl.URITemplate)
}

// RegisterResourceLister adds a source of concrete resources for resources/list.
func (s *Server) RegisterResourceLister(fn ResourceLister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listers = append(s.listers, fn)
}

// RegisterPrompt registers a prompt template.
func (s *Server) RegisterPrompt(prompt Prompt, handler PromptHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[prompt.Name] = promptEntry{prompt: prompt, handler: handler}
	log.Debug(log.CatMCP, "Registered prompt", "name", prompt.Name)
}

// Initialized reports whether the client sent notifications/initialized.
func (s *Server) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Serve reads newline-delimited requests from stdin until EOF or Stop,
// writing responses and notifications to stdout.
func (s *Server) Serve(stdin io.Reader, stdout io.Writer) error {
	s.writeMu.Lock()
	s.writer = stdout
	s.writeMu.Unlock()

	defer func() {
		s.writeMu.Lock()
		s.writer = nil
		s.writeMu.Unlock()
	}()

	return s.run(stdin)
}

// Stop cancels in-flight handlers and ends Serve after the current message.
func (s *Server) Stop() {
	s.cancel()
}

func (s *Server) run(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	// board images travel base64 encoded, so allow large lines
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		log.Debug(log.CatMCP, "Received message", "bytes", len(line))

		if resp := s.handleMessage(s.ctx, line); resp != nil {
			s.send(resp)
		}

		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		log.Debug(log.CatMCP, "Scanner error", "error", err)
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// handleMessage decodes one message and dispatches it. It returns nil for
// notifications.
func (s *Server) handleMessage(ctx context.Context, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return NewErrorResponse(nil, NewParseError(err.Error()))
	}
	if req.IsNotification() {
		s.handleNotification(&req)
		return nil
	}
	if req.JSONRPC != JSONRPCVersion {
		return NewErrorResponse(req.ID, NewInvalidRequest("jsonrpc must be \"2.0\""))
	}
	return s.dispatch(ctx, &req)
}

// dispatch runs a request and builds its response. Both transports use it.
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	log.Debug(log.CatMCP, "Handling request", "method", req.Method)

	var result any
	var rpcErr *RPCError

	switch req.Method {
	case "initialize":
		result, rpcErr = s.handleInitialize(req.Params)
	case "ping":
		result = struct{}{}
	case "tools/list":
		result, rpcErr = s.handleToolsList()
	case "tools/call":
		result, rpcErr = s.handleToolsCall(ctx, req.ID, req.Params)
	case "resources/list":
		result, rpcErr = s.handleResourcesList(ctx)
	case "resources/templates/list":
		result, rpcErr = s.handleResourceTemplatesList()
	case "resources/read":
		result, rpcErr = s.handleResourcesRead(ctx, req.Params)
	case "prompts/list":
		result, rpcErr = s.handlePromptsList()
	case "prompts/get":
		result, rpcErr = s.handlePromptsGet(ctx, req.Params)
	default:
		rpcErr = NewMethodNotFound(req.Method)
	}

	if rpcErr != nil {
		return NewErrorResponse(req.ID, rpcErr)
	}
	return NewResponse(req.ID, result)
}

// handleNotification processes a JSON-RPC notification (no response needed).
func (s *Server) handleNotification(req *Request) {
	switch req.Method {
	case "notifications/initialized":
		s.mu.Lock()
		s.initialized = true
		s.mu.Unlock()
		log.Debug(log.CatMCP, "Client initialized")
	case "notifications/cancelled":
		// requests run to completion; nothing to abort
		log.Debug(log.CatMCP, "Request cancelled", "params", string(req.Params))
	default:
		log.Debug(log.CatMCP, "Unknown notification", "method", req.Method)
	}
}

func (s *Server) handleInitialize(params json.RawMessage) (any, *RPCError) {
	var p InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, NewInvalidParams(err.Error())
		}
	}

	log.Info(log.CatMCP, "Initialize request",
		"clientVersion", p.ProtocolVersion,
		"clientName", p.ClientInfo.Name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	caps := ServerCapability{Tools: &ToolsCapability{}}
	if len(s.templates) > 0 || len(s.listers) > 0 {
		caps.Resources = &ResourcesCapability{ListChanged: true}
	}
	if len(s.prompts) > 0 {
		caps.Prompts = &PromptsCapability{}
	}

	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    caps,
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}, nil
}

func (s *Server) handleToolsList() (any, *RPCError) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := make([]Tool, 0, len(s.tools))
	for _, tool := range s.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return ToolsListResult{Tools: tools}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, id json.RawMessage, params json.RawMessage) (any, *RPCError) {
	var p ToolCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, NewInvalidParams(err.Error())
	}

	s.mu.RLock()
	handler, ok := s.handlers[p.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, NewToolNotFound(p.Name)
	}

	log.Debug(log.CatMCP, "Calling tool", "name", p.Name)

	ctx, span := tracing.StartToolSpan(ctx, s.tracer, p.Name, string(id))
	result, err := s.callTool(ctx, handler, p.Arguments)
	if err != nil {
		log.Debug(log.CatMCP, "Tool execution failed", "name", p.Name, "error", err)
		result = ErrorResult(err.Error())
	}
	if result == nil {
		result = SuccessResult("")
	}

	failure := ""
	if result.IsError && len(result.Content) > 0 {
		failure = result.Content[0].Text
	}
	tracing.EndSpan(span, err, result.IsError, failure)
	s.metrics.ObserveToolCall(p.Name, result.IsError)

	return result, nil
}

// callTool runs handler, turning a panic into an error so one bad call
// cannot take the stdio loop down.
func (s *Server) callTool(ctx context.Context, handler ToolHandler, args json.RawMessage) (result *ToolCallResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatMCP, "Tool panicked", "panic", r)
			result, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()
	return handler(ctx, args)
}

func (s *Server) handleResourcesList(ctx context.Context) (any, *RPCError) {
	s.mu.RLock()
	listers := append([]ResourceLister(nil), s.listers...)
	s.mu.RUnlock()

	resources := []Resource{}
	for _, fn := range listers {
		resources = append(resources, fn(ctx)...)
	}
	return ResourcesListResult{Resources: resources}, nil
}

func (s *Server) handleResourceTemplatesList() (any, *RPCError) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	templates := make([]ResourceTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		templates = append(templates, t.template)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].URITemplate < templates[j].URITemplate })
	return ResourceTemplatesListResult{ResourceTemplates: templates}, nil
}

func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var p ReadResourceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, NewInvalidParams(err.Error())
	}
	if p.URI == "" {
		return nil, NewInvalidParams("uri is required")
	}

	handler := s.resourceHandler(p.URI)
	if handler == nil {
		return nil, NewResourceNotFound(p.URI, "")
	}

	ctx, span := tracing.StartResourceSpan(ctx, s.tracer, p.URI)
	contents, err := handler(ctx, p.URI)
	tracing.EndSpan(span, err, false, "")
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		log.ErrorErr(log.CatMCP, "Resource read failed", err, "uri", p.URI)
		return nil, NewInternalError(err.Error())
	}
	return ReadResourceResult{Contents: []ResourceContents{*contents}}, nil
}

func (s *Server) resourceHandler(uri string) ResourceHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.templates {
		if strings.HasPrefix(uri, t.prefix) {
			return t.handler
		}
	}
	return nil
}

func (s *Server) handlePromptsList() (any, *RPCError) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prompts := make([]Prompt, 0, len(s.prompts))
	for _, p := range s.prompts {
		prompts = append(prompts, p.prompt)
	}
	sort.Slice(prompts, func(i, j int) bool { return prompts[i].Name < prompts[j].Name })
	return PromptsListResult{Prompts: prompts}, nil
}

func (s *Server) handlePromptsGet(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var p GetPromptParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, NewInvalidParams(err.Error())
	}

	s.mu.RLock()
	entry, ok := s.prompts[p.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, NewPromptNotFound(p.Name)
	}

	for _, arg := range entry.prompt.Arguments {
		if arg.Required && p.Arguments[arg.Name] == "" {
			return nil, NewInvalidParams(fmt.Sprintf("missing required argument %q", arg.Name))
		}
	}

	result, err := entry.handler(ctx, p.Arguments)
	if err != nil {
		return nil, NewInternalError(err.Error())
	}
	return result, nil
}

// Notify sends a notification to the stdio client. It is a no-op when no
// stdio session is running.
func (s *Server) Notify(method string, params any) {
	s.write(Notification{JSONRPC: JSONRPCVersion, Method: method, Params: params})
}

func (s *Server) send(resp *Response) {
	s.write(resp)
}

// write marshals v and writes it as one line.
func (s *Server) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Debug(log.CatMCP, "Failed to marshal message", "error", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writer == nil {
		return
	}

	data = append(data, '\n')
	if _, err := s.writer.Write(data); err != nil {
		log.Debug(log.CatMCP, "Failed to write message", "error", err)
		return
	}
	log.Debug(log.CatMCP, "Sent message", "bytes", len(data))
}
