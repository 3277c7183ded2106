package mcp

import (
	"context"
	"net/url"
	"strings"
)

const greetingPrefix = "greeting://"

// RegisterPrompts adds the code review and debugging prompts and the
// greeting resource to s.
func RegisterPrompts(s *Server) {
	s.RegisterPrompt(Prompt{
		Name:        "review_code",
		Description: "Ask for a review of a piece of code",
		Arguments: []PromptArgument{
			{Name: "code", Description: "The code to review", Required: true},
		},
	}, func(_ context.Context, args map[string]string) (*GetPromptResult, error) {
		return &GetPromptResult{
			Messages: []PromptMessage{
				{Role: "user", Content: TextContent("Please review this code:\n\n" + args["code"])},
			},
		}, nil
	})

	s.RegisterPrompt(Prompt{
		Name:        "debug_error",
		Description: "Start a debugging conversation about an error",
		Arguments: []PromptArgument{
			{Name: "error", Description: "The error message", Required: true},
		},
	}, func(_ context.Context, args map[string]string) (*GetPromptResult, error) {
		return &GetPromptResult{
			Messages: []PromptMessage{
				{Role: "user", Content: TextContent("I'm seeing this error:")},
				{Role: "user", Content: TextContent(args["error"])},
				{Role: "assistant", Content: TextContent("I'll help debug that. What have you tried so far?")},
			},
		}, nil
	})

	s.RegisterResourceTemplate(ResourceTemplate{
		URITemplate: greetingPrefix + "{name}",
		Name:        "Greeting",
		Description: "A personalized greeting",
		MimeType:    "text/plain",
	}, readGreeting)
}

func readGreeting(_ context.Context, uri string) (*ResourceContents, error) {
	name := strings.TrimPrefix(uri, greetingPrefix)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "" {
		return nil, NewResourceNotFound(uri, "greeting needs a name")
	}
	return &ResourceContents{URI: uri, MimeType: "text/plain", Text: "Hello, " + name + "!"}, nil
}
