package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/pubsub"
	"github.com/zjrosen/boardwalk/internal/registry"
)

// DefaultBoardSize is the edge length used when create_board gets no size.
const DefaultBoardSize = 400

const boardInstructions = `Render chess positions as board images.

Call create_board with a FEN string to render a position. The result names a
chess://board/{id} resource; read it, or call get_board with the id, to get
the image. list_boards shows every board created so far and clear_boards
removes them all.`

// BoardServer exposes a board registry as MCP tools and resources.
type BoardServer struct {
	*Server
	registry    *registry.Registry
	defaultSize int
}

// NewBoardServer creates a server backed by reg. defaultSize <= 0 means
// DefaultBoardSize.
func NewBoardServer(name, version string, reg *registry.Registry, defaultSize int, opts ...ServerOption) *BoardServer {
	if defaultSize <= 0 {
		defaultSize = DefaultBoardSize
	}
	opts = append([]ServerOption{WithInstructions(boardInstructions)}, opts...)

	bs := &BoardServer{
		Server:      NewServer(name, version, opts...),
		registry:    reg,
		defaultSize: defaultSize,
	}
	bs.registerTools()
	bs.registerResources()
	return bs
}

type createBoardArgs struct {
	FEN  string `json:"fen" validate:"required"`
	Size *int   `json:"size,omitempty" validate:"omitempty,gt=0"`
}

type getBoardArgs struct {
	BoardID string `json:"board_id" validate:"required"`
}

// boardSummary is one entry of list_boards structured output.
type boardSummary struct {
	ID       string `json:"id"`
	URI      string `json:"uri"`
	FEN      string `json:"fen"`
	Size     int    `json:"size"`
	MimeType string `json:"mime_type"`
}

type listBoardsOutput struct {
	Boards []boardSummary `json:"boards"`
}

func (bs *BoardServer) registerTools() {
	bs.RegisterTool(Tool{
		Name:        "create_board",
		Description: "Render a chess position given in FEN and store it as a chess://board/{id} resource.",
		InputSchema: &InputSchema{
			Type: "object",
			Properties: map[string]*PropertySchema{
				"fen": {
					Type:        "string",
					Description: "Position in Forsyth-Edwards Notation",
				},
				"size": {
					Type:        "integer",
					Description: "Board edge length in pixels",
					Default:     bs.defaultSize,
					Minimum:     ptrFloat(1),
				},
			},
			Required: []string{"fen"},
		},
	}, bs.handleCreateBoard)

	bs.RegisterTool(Tool{
		Name:        "get_board",
		Description: "Return the image of a board created earlier.",
		InputSchema: &InputSchema{
			Type: "object",
			Properties: map[string]*PropertySchema{
				"board_id": {Type: "string", Description: "Board id, for example board_1"},
			},
			Required: []string{"board_id"},
		},
	}, bs.handleGetBoard)

	bs.RegisterTool(Tool{
		Name:        "list_boards",
		Description: "List every board created so far, oldest first.",
		InputSchema: &InputSchema{Type: "object", Properties: map[string]*PropertySchema{}},
		OutputSchema: &OutputSchema{
			Type: "object",
			Properties: map[string]*PropertySchema{
				"boards": {
					Type: "array",
					Items: &PropertySchema{
						Type: "object",
						Properties: map[string]*PropertySchema{
							"id":        {Type: "string"},
							"uri":       {Type: "string"},
							"fen":       {Type: "string"},
							"size":      {Type: "integer"},
							"mime_type": {Type: "string"},
						},
						Required: []string{"id", "uri", "fen", "size", "mime_type"},
					},
				},
			},
			Required: []string{"boards"},
		},
	}, bs.handleListBoards)

	bs.RegisterTool(Tool{
		Name:        "clear_boards",
		Description: "Delete every board and its image.",
		InputSchema: &InputSchema{Type: "object", Properties: map[string]*PropertySchema{}},
	}, bs.handleClearBoards)
}

func (bs *BoardServer) registerResources() {
	bs.RegisterResourceTemplate(ResourceTemplate{
		URITemplate: registry.URIPrefix + "{id}",
		Name:        "Chess board",
		Description: "A rendered chess board image",
	}, bs.readBoard)

	bs.RegisterResourceLister(bs.listResources)
}

func (bs *BoardServer) handleCreateBoard(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	var args createBoardArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	size := bs.defaultSize
	if args.Size != nil {
		size = *args.Size
	}

	res := bs.registry.Create(ctx, args.FEN, size)
	if !res.OK() {
		return ErrorResult(res.Failure()), nil
	}
	return SuccessResult(res.Message), nil
}

func (bs *BoardServer) handleGetBoard(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	var args getBoardArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	res := bs.registry.Get(ctx, args.BoardID)
	if !res.OK() {
		return ErrorResult(res.Failure()), nil
	}
	return ImageResult(res.Data, res.MimeType), nil
}

func (bs *BoardServer) handleListBoards(_ context.Context, _ json.RawMessage) (*ToolCallResult, error) {
	res := bs.registry.List()
	if !res.OK() {
		return ErrorResult(res.Failure()), nil
	}

	out := listBoardsOutput{Boards: make([]boardSummary, 0, len(res.Boards))}
	lines := make([]string, 0, len(res.Boards))
	for _, b := range res.Boards {
		out.Boards = append(out.Boards, boardSummary{
			ID:       b.ID,
			URI:      b.URI,
			FEN:      b.FEN,
			Size:     b.Size,
			MimeType: b.MimeType,
		})
		lines = append(lines, fmt.Sprintf("%s %s (%dpx, %s)", b.ID, b.FEN, b.Size, b.MimeType))
	}

	text := "No boards"
	if len(lines) > 0 {
		text = strings.Join(lines, "\n")
	}
	return StructuredResult(text, out), nil
}

func (bs *BoardServer) handleClearBoards(ctx context.Context, _ json.RawMessage) (*ToolCallResult, error) {
	res := bs.registry.Clear(ctx)
	if !res.OK() {
		return ErrorResult(res.Failure()), nil
	}
	return SuccessResult(res.Message()), nil
}

func (bs *BoardServer) readBoard(ctx context.Context, uri string) (*ResourceContents, error) {
	res := bs.registry.GetByURI(ctx, uri)
	if res.NotFound() {
		return nil, NewResourceNotFound(uri, res.Failure())
	}
	if !res.OK() {
		return nil, NewInternalError(res.Failure())
	}
	contents := BlobContents(uri, res.MimeType, res.Data)
	return &contents, nil
}

func (bs *BoardServer) listResources(_ context.Context) []Resource {
	boards := bs.registry.List().Boards
	out := make([]Resource, 0, len(boards))
	for _, b := range boards {
		out = append(out, Resource{
			URI:         b.URI,
			Name:        b.Name,
			Description: b.Description,
			MimeType:    b.MimeType,
		})
	}
	return out
}

// Listen forwards catalogue changes to the stdio client until ctx is done.
func (bs *BoardServer) Listen(ctx context.Context) {
	pubsub.Listen(ctx, bs.registry.Broker(), func(ev pubsub.Event[registry.BoardResource]) {
		log.Debug(log.CatMCP, "catalogue changed", "event", ev.Type, "id", ev.Payload.ID)
		bs.Notify("notifications/resources/list_changed", nil)
	})
}

// WatchRemovals tells the client about board files deleted out of band.
// The catalogue entries stay; reading them reports the missing file.
func (bs *BoardServer) WatchRemovals(ctx context.Context, removed <-chan []string) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-removed:
			if !ok {
				return
			}
			for _, path := range batch {
				res, found := bs.registry.FindByPath(path)
				if !found {
					continue
				}
				log.Warn(log.CatWatcher, "board file removed", "id", res.ID, "path", path)
				bs.Notify("notifications/resources/updated", ResourceUpdatedParams{URI: res.URI})
			}
		}
	}
}
