package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/boardwalk/internal/geocode"
	"github.com/zjrosen/boardwalk/internal/relay"
	"github.com/zjrosen/boardwalk/internal/weather"
)

type fakeGeocoder struct {
	result geocode.Result
	err    error
	place  string
}

func (f *fakeGeocoder) Coordinates(_ context.Context, place string) (geocode.Result, error) {
	f.place = place
	return f.result, f.err
}

type fakeWeather struct {
	summary  weather.Summary
	lat, lon *float64
}

func (f *fakeWeather) Current(_ context.Context, lat, lon *float64) (weather.Summary, error) {
	f.lat, f.lon = lat, lon
	return f.summary, nil
}

type mockPoster struct {
	mock.Mock
}

func (m *mockPoster) Post(ctx context.Context, channel, message string) (relay.Post, error) {
	args := m.Called(ctx, channel, message)
	return args.Get(0).(relay.Post), args.Error(1)
}

func toolText(t *testing.T, msg wireMessage) (string, bool) {
	t.Helper()
	require.Nil(t, msg.Error)
	res := decode[ToolCallResult](t, msg.Result)
	require.NotEmpty(t, res.Content)
	return res.Content[0].Text, res.IsError
}

func TestToolbox_OptionalToolsNeedClients(t *testing.T) {
	s := NewServer("test", "1.0.0")
	RegisterToolbox(s, Toolbox{Fs: afero.NewMemMapFs()})

	msgs := session(t, s, request(1, "tools/list", nil))
	result := decode[ToolsListResult](t, msgs[0].Result)
	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	require.Equal(t, []string{"add", "create_thumbnail", "multiply"}, names)
}

func TestToolbox_Arithmetic(t *testing.T) {
	s := NewServer("test", "1.0.0")
	RegisterToolbox(s, Toolbox{})

	msgs := session(t, s,
		callTool("add", 1, map[string]any{"a": 1.5, "b": 2.25}),
		callTool("add", 2, map[string]any{"a": 0, "b": 0}),
		callTool("multiply", 3, map[string]any{"a": 6, "b": -7}),
		callTool("multiply", 4, map[string]any{"a": 1.5, "b": 2}),
		callTool("add", 5, map[string]any{"a": 1}),
	)

	text, isErr := toolText(t, msgs[0])
	require.False(t, isErr)
	require.Equal(t, "3.75", text)

	text, isErr = toolText(t, msgs[1])
	require.False(t, isErr, "zero is a valid operand")
	require.Equal(t, "0", text)

	text, _ = toolText(t, msgs[2])
	require.Equal(t, "-42", text)

	_, isErr = toolText(t, msgs[3])
	require.True(t, isErr, "multiply takes integers")

	text, isErr = toolText(t, msgs[4])
	require.True(t, isErr)
	require.Equal(t, "invalid arguments: b is required", text)
}

func TestToolbox_CreateThumbnail(t *testing.T) {
	fs := afero.NewMemMapFs()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 300, 150))))
	require.NoError(t, afero.WriteFile(fs, "/images/wide.png", buf.Bytes(), 0o644))

	s := NewServer("test", "1.0.0")
	RegisterToolbox(s, Toolbox{Fs: fs})

	msgs := session(t, s,
		callTool("create_thumbnail", 1, map[string]any{"image_path": "/images/wide.png"}),
		callTool("create_thumbnail", 2, map[string]any{"image_path": "/images/wide.png", "max_size": 30}),
		callTool("create_thumbnail", 3, map[string]any{"image_path": "/images/none.png"}),
	)

	for i, want := range [][2]int{{100, 50}, {30, 15}} {
		res := decode[ToolCallResult](t, msgs[i].Result)
		require.False(t, res.IsError)
		require.Equal(t, "image/png", res.Content[0].MimeType)
		data, err := base64.StdEncoding.DecodeString(res.Content[0].Data)
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		require.Equal(t, want[0], cfg.Width)
		require.Equal(t, want[1], cfg.Height)
	}

	text, isErr := toolText(t, msgs[2])
	require.True(t, isErr)
	require.Contains(t, text, `Error reading image "/images/none.png"`)
}

func TestToolbox_Coordinates(t *testing.T) {
	lat, lon := 37.7749, -122.4194
	geo := &fakeGeocoder{result: geocode.Result{Latitude: &lat, Longitude: &lon, Status: geocode.StatusSuccess}}

	s := NewServer("test", "1.0.0")
	RegisterToolbox(s, Toolbox{Geocode: geo})

	msgs := session(t, s, callTool("get_coordinates", 1, map[string]any{"place": "San Francisco"}))
	res := decode[struct {
		StructuredContent geocode.Result `json:"structuredContent"`
	}](t, msgs[0].Result)

	require.Equal(t, "San Francisco", geo.place)
	require.Equal(t, geocode.StatusSuccess, res.StructuredContent.Status)
	require.InDelta(t, lat, *res.StructuredContent.Latitude, 1e-9)
	require.InDelta(t, lon, *res.StructuredContent.Longitude, 1e-9)
}

func TestToolbox_CoordinatesErrorIsToolError(t *testing.T) {
	s := NewServer("test", "1.0.0")
	RegisterToolbox(s, Toolbox{Geocode: &fakeGeocoder{err: context.DeadlineExceeded}})

	msgs := session(t, s, callTool("get_coordinates", 1, map[string]any{"place": "Nowhere"}))
	text, isErr := toolText(t, msgs[0])
	require.True(t, isErr)
	require.Contains(t, text, `looking up "Nowhere"`)
}

func TestToolbox_CoordinatesUpstreamFailureKeepsStatus(t *testing.T) {
	geo := &fakeGeocoder{
		result: geocode.Result{Status: "Request error: status 503"},
		err:    errors.New("geocode request: status 503"),
	}
	s := NewServer("test", "1.0.0")
	RegisterToolbox(s, Toolbox{Geocode: geo})

	msgs := session(t, s, callTool("get_coordinates", 1, map[string]any{"place": "Paris"}))
	text, isErr := toolText(t, msgs[0])
	require.True(t, isErr)
	require.JSONEq(t, `{"latitude":null,"longitude":null,"status":"Request error: status 503"}`, text)
}

func TestToolbox_Weather(t *testing.T) {
	temp, wind, dir := 12.5, 3.0, "NW"
	src := &fakeWeather{summary: weather.Summary{Temperature: &temp, WindSpeed: &wind, WindDirection: &dir, Status: weather.StatusSuccess}}

	s := NewServer("test", "1.0.0")
	RegisterToolbox(s, Toolbox{Weather: src})

	msgs := session(t, s,
		callTool("get_weather", 1, map[string]any{"latitude": 52.52, "longitude": 13.405}),
		callTool("get_weather", 2, nil),
	)

	text, isErr := toolText(t, msgs[0])
	require.False(t, isErr)
	require.JSONEq(t, `{"temperature":12.5,"wind_speed":3,"wind_direction":"NW","status":"success"}`, text)

	// absent coordinates reach the client, which reports them
	_, isErr = toolText(t, msgs[1])
	require.False(t, isErr)
	require.Nil(t, src.lat)
	require.Nil(t, src.lon)
}

func TestToolbox_PostMessage(t *testing.T) {
	poster := &mockPoster{}
	poster.On("Post", mock.Anything, "", "hello team").
		Return(relay.Post{ID: "p1", ChannelID: "c1", Message: "hello team"}, nil).Once()
	poster.On("Post", mock.Anything, "random", "again").
		Return(relay.Post{}, errors.New("403 forbidden")).Once()

	s := NewServer("test", "1.0.0")
	RegisterToolbox(s, Toolbox{Relay: poster})

	msgs := session(t, s,
		callTool("post_message", 1, map[string]any{"message": "hello team"}),
		callTool("post_message", 2, map[string]any{"message": "again", "channel": "random"}),
	)

	text, isErr := toolText(t, msgs[0])
	require.False(t, isErr)
	require.Equal(t, "Posted message p1 to channel c1", text)

	text, isErr = toolText(t, msgs[1])
	require.True(t, isErr)
	require.Contains(t, text, "403 forbidden")

	poster.AssertExpectations(t)
}
