package mcp

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/boardwalk/internal/position"
	"github.com/zjrosen/boardwalk/internal/registry"
	"github.com/zjrosen/boardwalk/internal/render"
	"github.com/zjrosen/boardwalk/internal/store"
)

const boardsDir = "/boards"

type svgSize struct {
	Width  string `xml:"width,attr"`
	Height string `xml:"height,attr"`
}

func newBoardServer(t *testing.T, defaultSize int) (*BoardServer, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	reg := registry.New(render.New(render.NoRasterizer{}), store.NewFileStoreFs(fs, boardsDir))
	t.Cleanup(reg.Close)
	return NewBoardServer("boardwalk", "test", reg, defaultSize), fs
}

func callTool(name string, id int, args any) string {
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	return request(id, "tools/call", params)
}

func TestBoardServer_ToolsRegistered(t *testing.T) {
	bs, _ := newBoardServer(t, 0)

	msgs := session(t, bs.Server, request(1, "tools/list", nil))
	result := decode[ToolsListResult](t, msgs[0].Result)

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		if tool.Name == "create_board" {
			require.Equal(t, []string{"fen"}, tool.InputSchema.Required)
			require.EqualValues(t, DefaultBoardSize, tool.InputSchema.Properties["size"].Default)
		}
		if tool.Name == "list_boards" {
			require.NotNil(t, tool.OutputSchema)
		}
	}
	require.Equal(t, []string{"clear_boards", "create_board", "get_board", "list_boards"}, names)
}

func TestBoardServer_CreateGetListClear(t *testing.T) {
	bs, _ := newBoardServer(t, 0)

	msgs := session(t, bs.Server,
		callTool("create_board", 1, map[string]any{"fen": position.StartingPosition}),
		callTool("get_board", 2, map[string]any{"board_id": "board_1"}),
		callTool("list_boards", 3, nil),
		callTool("clear_boards", 4, nil),
		callTool("get_board", 5, map[string]any{"board_id": "board_1"}),
		callTool("clear_boards", 6, nil),
	)
	require.Len(t, msgs, 6)

	created := decode[ToolCallResult](t, msgs[0].Result)
	require.False(t, created.IsError, created.Content[0].Text)
	require.Contains(t, created.Content[0].Text, "chess://board/board_1")

	got := decode[ToolCallResult](t, msgs[1].Result)
	require.False(t, got.IsError)
	require.Equal(t, "image", got.Content[0].Type)
	require.Equal(t, render.Vector.MimeType(), got.Content[0].MimeType)
	data, err := base64.StdEncoding.DecodeString(got.Content[0].Data)
	require.NoError(t, err)
	var size svgSize
	require.NoError(t, xml.Unmarshal(data, &size))
	require.Equal(t, "400", size.Width)
	require.Equal(t, "400", size.Height)

	listed := decode[struct {
		IsError           bool             `json:"isError"`
		StructuredContent listBoardsOutput `json:"structuredContent"`
	}](t, msgs[2].Result)
	require.False(t, listed.IsError)
	require.Equal(t, []boardSummary{{
		ID:       "board_1",
		URI:      "chess://board/board_1",
		FEN:      position.StartingPosition,
		Size:     400,
		MimeType: render.Vector.MimeType(),
	}}, listed.StructuredContent.Boards)

	cleared := decode[ToolCallResult](t, msgs[3].Result)
	require.False(t, cleared.IsError)
	require.Equal(t, "Cleared 1 board resources", cleared.Content[0].Text)

	gone := decode[ToolCallResult](t, msgs[4].Result)
	require.True(t, gone.IsError)
	require.Equal(t, "Board not found: board_1", gone.Content[0].Text)

	again := decode[ToolCallResult](t, msgs[5].Result)
	require.Equal(t, "Cleared 0 board resources", again.Content[0].Text)
}

func TestBoardServer_CreateFailures(t *testing.T) {
	bs, _ := newBoardServer(t, 0)

	msgs := session(t, bs.Server,
		callTool("create_board", 1, map[string]any{"fen": "invalid-fen-string"}),
		callTool("create_board", 2, map[string]any{"fen": position.StartingPosition, "size": 0}),
		callTool("create_board", 3, map[string]any{}),
		callTool("create_board", 4, map[string]any{"fen": position.StartingPosition, "size": "big"}),
		callTool("list_boards", 5, nil),
	)

	invalid := decode[ToolCallResult](t, msgs[0].Result)
	require.True(t, invalid.IsError)
	require.Contains(t, invalid.Content[0].Text, `Invalid position "invalid-fen-string"`)

	zero := decode[ToolCallResult](t, msgs[1].Result)
	require.True(t, zero.IsError)
	require.Equal(t, "invalid arguments: size must be greater than 0", zero.Content[0].Text)

	missing := decode[ToolCallResult](t, msgs[2].Result)
	require.Equal(t, "invalid arguments: fen is required", missing.Content[0].Text)

	wrongType := decode[ToolCallResult](t, msgs[3].Result)
	require.True(t, wrongType.IsError)
	require.Contains(t, wrongType.Content[0].Text, "invalid arguments")

	list := decode[ToolCallResult](t, msgs[4].Result)
	require.Equal(t, "No boards", list.Content[0].Text)
}

func TestBoardServer_DefaultSize(t *testing.T) {
	bs, _ := newBoardServer(t, 128)

	session(t, bs.Server, callTool("create_board", 1, map[string]any{"fen": position.StartingPosition}))

	res, ok := bs.registry.Lookup("board_1")
	require.True(t, ok)
	require.Equal(t, 128, res.Size)
}

func TestBoardServer_MissingFile(t *testing.T) {
	bs, fs := newBoardServer(t, 0)

	session(t, bs.Server, callTool("create_board", 1, map[string]any{"fen": position.StartingPosition}))
	require.NoError(t, fs.Remove(boardsDir+"/board_1.svg"))

	msgs := session(t, bs.Server, callTool("get_board", 2, map[string]any{"board_id": "board_1"}),
		request(3, "resources/read", map[string]any{"uri": "chess://board/board_1"}))

	got := decode[ToolCallResult](t, msgs[0].Result)
	require.True(t, got.IsError)
	require.Contains(t, got.Content[0].Text, "missing")

	require.NotNil(t, msgs[1].Error)
	require.Equal(t, ErrCodeInternalError, msgs[1].Error.Code)

	_, ok := bs.registry.Lookup("board_1")
	require.True(t, ok, "entry stays catalogued")
}

func TestBoardServer_Resources(t *testing.T) {
	bs, _ := newBoardServer(t, 0)

	msgs := session(t, bs.Server,
		callTool("create_board", 1, map[string]any{"fen": position.StartingPosition, "size": 200}),
		request(2, "resources/list", nil),
		request(3, "resources/read", map[string]any{"uri": "chess://board/board_1"}),
		request(4, "resources/read", map[string]any{"uri": "chess://board/board_9"}),
		request(5, "resources/templates/list", nil),
	)

	list := decode[ResourcesListResult](t, msgs[1].Result)
	require.Len(t, list.Resources, 1)
	require.Equal(t, "chess://board/board_1", list.Resources[0].URI)
	require.Equal(t, "Chess board board_1", list.Resources[0].Name)
	require.Equal(t, render.Vector.MimeType(), list.Resources[0].MimeType)

	read := decode[ReadResourceResult](t, msgs[2].Result)
	require.Len(t, read.Contents, 1)
	require.Equal(t, "chess://board/board_1", read.Contents[0].URI)
	data, err := base64.StdEncoding.DecodeString(read.Contents[0].Blob)
	require.NoError(t, err)
	var size svgSize
	require.NoError(t, xml.Unmarshal(data, &size))
	require.Equal(t, "200", size.Width)

	require.NotNil(t, msgs[3].Error)
	require.Equal(t, ErrCodeResourceNotFound, msgs[3].Error.Code)
	require.Equal(t, "Board not found: board_9", msgs[3].Error.Message)

	templates := decode[ResourceTemplatesListResult](t, msgs[4].Result)
	require.Equal(t, "chess://board/{id}", templates.ResourceTemplates[0].URITemplate)
}

// stdioClient runs a session over pipes so asynchronous notifications can
// be observed.
type stdioClient struct {
	in    *io.PipeWriter
	lines *bufio.Scanner
	done  chan error
}

func startStdio(t *testing.T, s *Server) *stdioClient {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	c := &stdioClient{in: inW, lines: bufio.NewScanner(outR), done: make(chan error, 1)}
	go func() { c.done <- s.Serve(inR, outW) }()
	t.Cleanup(func() {
		_ = inW.Close()
		_ = outR.Close()
	})

	_, err := io.WriteString(inW, request(0, "ping", nil)+"\n")
	require.NoError(t, err)
	require.True(t, c.lines.Scan())
	return c
}

func (c *stdioClient) next(t *testing.T) wireMessage {
	t.Helper()
	got := make(chan wireMessage, 1)
	go func() {
		var m wireMessage
		if c.lines.Scan() {
			_ = json.Unmarshal(c.lines.Bytes(), &m)
		}
		got <- m
	}()
	select {
	case m := <-got:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return wireMessage{}
	}
}

func TestBoardServer_ListenNotifiesCatalogueChanges(t *testing.T) {
	bs, _ := newBoardServer(t, 0)
	client := startStdio(t, bs.Server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bs.Listen(ctx)
	require.Eventually(t, func() bool { return bs.registry.Broker().SubscriberCount() == 1 },
		time.Second, 10*time.Millisecond)

	res := bs.registry.Create(ctx, position.StartingPosition, 100)
	require.True(t, res.OK())
	require.Equal(t, "notifications/resources/list_changed", client.next(t).Method)

	bs.registry.Clear(ctx)
	require.Equal(t, "notifications/resources/list_changed", client.next(t).Method)
}

func TestBoardServer_WatchRemovals(t *testing.T) {
	bs, _ := newBoardServer(t, 0)
	client := startStdio(t, bs.Server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res := bs.registry.Create(ctx, position.StartingPosition, 100)
	require.True(t, res.OK())

	removed := make(chan []string, 1)
	go bs.WatchRemovals(ctx, removed)
	removed <- []string{boardsDir + "/unrelated.png", res.Resource.FilePath}

	msg := client.next(t)
	require.Equal(t, "notifications/resources/updated", msg.Method)
	params := decode[ResourceUpdatedParams](t, msg.Params)
	require.Equal(t, "chess://board/board_1", params.URI)
}
