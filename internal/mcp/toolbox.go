package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/afero"

	"github.com/zjrosen/boardwalk/internal/geocode"
	"github.com/zjrosen/boardwalk/internal/relay"
	"github.com/zjrosen/boardwalk/internal/render"
	"github.com/zjrosen/boardwalk/internal/weather"
)

// Geocoder resolves place names. *geocode.Client satisfies it.
type Geocoder interface {
	Coordinates(ctx context.Context, place string) (geocode.Result, error)
}

// WeatherSource reports current conditions. *weather.Client satisfies it.
type WeatherSource interface {
	Current(ctx context.Context, lat, lon *float64) (weather.Summary, error)
}

// Poster sends chat messages. *relay.Client satisfies it.
type Poster interface {
	Post(ctx context.Context, channel, message string) (relay.Post, error)
}

// Toolbox holds the dependencies of the utility tools. Nil clients leave
// their tools unregistered.
type Toolbox struct {
	Fs      afero.Fs
	Geocode Geocoder
	Weather WeatherSource
	Relay   Poster
}

type addArgs struct {
	A *float64 `json:"a" validate:"required"`
	B *float64 `json:"b" validate:"required"`
}

type multiplyArgs struct {
	A *int64 `json:"a" validate:"required"`
	B *int64 `json:"b" validate:"required"`
}

type thumbnailArgs struct {
	ImagePath string `json:"image_path" validate:"required"`
	MaxSize   *int   `json:"max_size,omitempty" validate:"omitempty,gt=0"`
}

type coordinatesArgs struct {
	Place string `json:"place" validate:"required"`
}

type weatherArgs struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type postArgs struct {
	Message string `json:"message" validate:"required"`
	Channel string `json:"channel,omitempty"`
}

var numberPair = map[string]*PropertySchema{
	"a": {Type: "number", Description: "First operand"},
	"b": {Type: "number", Description: "Second operand"},
}

var integerPair = map[string]*PropertySchema{
	"a": {Type: "integer", Description: "First operand"},
	"b": {Type: "integer", Description: "Second operand"},
}

// RegisterToolbox adds the utility tools to s.
func RegisterToolbox(s *Server, tb Toolbox) {
	if tb.Fs == nil {
		tb.Fs = afero.NewOsFs()
	}

	s.RegisterTool(Tool{
		Name:        "add",
		Description: "Add two numbers.",
		InputSchema: &InputSchema{Type: "object", Properties: numberPair, Required: []string{"a", "b"}},
	}, handleAdd)

	s.RegisterTool(Tool{
		Name:        "multiply",
		Description: "Multiply two integers.",
		InputSchema: &InputSchema{Type: "object", Properties: integerPair, Required: []string{"a", "b"}},
	}, handleMultiply)

	s.RegisterTool(Tool{
		Name:        "create_thumbnail",
		Description: "Shrink an image file so it fits a square box, keeping its aspect ratio.",
		InputSchema: &InputSchema{
			Type: "object",
			Properties: map[string]*PropertySchema{
				"image_path": {Type: "string", Description: "Path of a PNG, JPEG or GIF file"},
				"max_size": {
					Type:        "integer",
					Description: "Largest edge of the thumbnail in pixels",
					Default:     render.DefaultThumbnailSize,
					Minimum:     ptrFloat(1),
				},
			},
			Required: []string{"image_path"},
		},
	}, thumbnailHandler(tb.Fs))

	if tb.Geocode != nil {
		s.RegisterTool(Tool{
			Name:        "get_coordinates",
			Description: "Look up the latitude and longitude of a place name.",
			InputSchema: &InputSchema{
				Type: "object",
				Properties: map[string]*PropertySchema{
					"place": {Type: "string", Description: "Place name, for example San Francisco"},
				},
				Required: []string{"place"},
			},
			OutputSchema: &OutputSchema{
				Type: "object",
				Properties: map[string]*PropertySchema{
					"latitude":  {Type: []string{"number", "null"}},
					"longitude": {Type: []string{"number", "null"}},
					"status":    {Type: "string"},
				},
				Required: []string{"latitude", "longitude", "status"},
			},
		}, coordinatesHandler(tb.Geocode))
	}

	if tb.Weather != nil {
		s.RegisterTool(Tool{
			Name:        "get_weather",
			Description: "Current temperature and wind at a coordinate pair.",
			InputSchema: &InputSchema{
				Type: "object",
				Properties: map[string]*PropertySchema{
					"latitude":  {Type: "number", Description: "Latitude in degrees"},
					"longitude": {Type: "number", Description: "Longitude in degrees"},
				},
			},
			OutputSchema: &OutputSchema{
				Type: "object",
				Properties: map[string]*PropertySchema{
					"temperature":    {Type: []string{"number", "null"}},
					"wind_speed":     {Type: []string{"number", "null"}},
					"wind_direction": {Type: []string{"string", "null"}},
					"status":         {Type: "string"},
				},
				Required: []string{"temperature", "wind_speed", "wind_direction", "status"},
			},
		}, weatherHandler(tb.Weather))
	}

	if tb.Relay != nil {
		s.RegisterTool(Tool{
			Name:        "post_message",
			Description: "Post a message to the configured chat team.",
			InputSchema: &InputSchema{
				Type: "object",
				Properties: map[string]*PropertySchema{
					"message": {Type: "string", Description: "Message text"},
					"channel": {Type: "string", Description: "Channel name; the configured default when empty"},
				},
				Required: []string{"message"},
			},
		}, postHandler(tb.Relay))
	}
}

func handleAdd(_ context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	var args addArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return SuccessResult(strconv.FormatFloat(*args.A+*args.B, 'g', -1, 64)), nil
}

func handleMultiply(_ context.Context, raw json.RawMessage) (*ToolCallResult, error) {
	var args multiplyArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return SuccessResult(strconv.FormatInt(*args.A**args.B, 10)), nil
}

func thumbnailHandler(fs afero.Fs) ToolHandler {
	return func(_ context.Context, raw json.RawMessage) (*ToolCallResult, error) {
		var args thumbnailArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		maxSize := render.DefaultThumbnailSize
		if args.MaxSize != nil {
			maxSize = *args.MaxSize
		}

		data, err := afero.ReadFile(fs, args.ImagePath)
		if err != nil {
			return ErrorResult(fmt.Sprintf("Error reading image %q: %v", args.ImagePath, err)), nil
		}
		thumb, err := render.Thumbnail(bytes.NewReader(data), maxSize)
		if err != nil {
			return ErrorResult(fmt.Sprintf("Error creating thumbnail of %q: %v", args.ImagePath, err)), nil
		}
		return ImageResult(thumb, render.Raster.MimeType()), nil
	}
}

func coordinatesHandler(g Geocoder) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
		var args coordinatesArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		res, err := g.Coordinates(ctx, args.Place)
		if err != nil && res.Status == "" {
			return nil, fmt.Errorf("looking up %q: %w", args.Place, err)
		}
		return structured(res, err != nil)
	}
}

func weatherHandler(w WeatherSource) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
		var args weatherArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		sum, err := w.Current(ctx, args.Latitude, args.Longitude)
		if err != nil && sum.Status == "" {
			return nil, fmt.Errorf("fetching weather: %w", err)
		}
		return structured(sum, err != nil)
	}
}

func postHandler(p Poster) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (*ToolCallResult, error) {
		var args postArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		post, err := p.Post(ctx, args.Channel, args.Message)
		if err != nil {
			return ErrorResult(fmt.Sprintf("Error posting message: %v", err)), nil
		}
		return SuccessResult(fmt.Sprintf("Posted message %s to channel %s", post.ID, post.ChannelID)), nil
	}
}

// structured returns v as both JSON text and structured content. Upstream
// failures still carry their status, flagged as an error.
func structured(v any, failed bool) (*ToolCallResult, error) {
	text, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	res := StructuredResult(string(text), v)
	res.IsError = failed
	return res, nil
}
