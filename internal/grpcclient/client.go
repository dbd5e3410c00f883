// Package grpcclient talks to a remote 68-point landmark model.
//
// The service speaks google.protobuf.Struct on a single unary method so no
// generated stubs are needed on either side.
package grpcclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/facetone/internal/detector"
	"github.com/example/facetone/internal/logging"
	"github.com/example/facetone/internal/pixel"
)

// ExtractMethod is the full gRPC method name of the landmark service.
const ExtractMethod = "/facetone.landmarks.v1.LandmarkService/Extract"

// DialLandmarkService returns a landmark client backed by a blocking dial to addr.
// The caller owns the returned connection.
func DialLandmarkService(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (*LandmarkClient, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_landmark_service", "", err)
		logger.Error("failed to dial landmark service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewLandmarkClient(conn, logger), conn, nil
}

// LandmarkClient implements detector.LandmarkExtractor over gRPC.
type LandmarkClient struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

var _ detector.LandmarkExtractor = (*LandmarkClient)(nil)

// NewLandmarkClient wraps an existing connection.
func NewLandmarkClient(conn grpc.ClientConnInterface, logger *zap.Logger) *LandmarkClient {
	return &LandmarkClient{conn: conn, logger: logger.Named("landmarks")}
}

// Extract sends the raster and face box and returns the 68 landmarks. Calls are
// not retried.
func (c *LandmarkClient) Extract(ctx context.Context, img *pixel.Image, face detector.BoundingBox) (detector.LandmarkSet, error) {
	req, err := encodeRequest(img, face)
	if err != nil {
		return detector.LandmarkSet{}, err
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, ExtractMethod, req, resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.extract_landmarks", "", err)
		c.logger.Error("landmark call failed", zap.Error(wrapped))
		return detector.LandmarkSet{}, wrapped
	}

	set, model, err := decodeResponse(resp)
	if err != nil {
		c.logger.Warn("landmark response rejected", zap.Error(err), zap.String("model", model))
		return detector.LandmarkSet{}, err
	}
	return set, nil
}

func encodeRequest(img *pixel.Image, face detector.BoundingBox) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"width":         img.Width,
		"height":        img.Height,
		"channel_order": string(img.Order()),
		"pixels":        base64.StdEncoding.EncodeToString(packedPixels(img)),
		"left":          face.Left,
		"top":           face.Top,
		"right":         face.Right,
		"bottom":        face.Bottom,
	})
}

// packedPixels returns the raster with rows back to back.
func packedPixels(img *pixel.Image) []byte {
	row := img.Width * 3
	if img.Stride == row {
		return img.Pix[:row*img.Height]
	}
	out := make([]byte, 0, row*img.Height)
	for y := 0; y < img.Height; y++ {
		out = append(out, img.Pix[y*img.Stride:y*img.Stride+row]...)
	}
	return out
}

func decodeResponse(resp *structpb.Struct) (detector.LandmarkSet, string, error) {
	var set detector.LandmarkSet
	fields := resp.GetFields()
	model := fields["model"].GetStringValue()

	if msg := fields["error"].GetStringValue(); msg != "" {
		return set, model, fmt.Errorf("landmark service: %s", msg)
	}

	list := fields["landmarks"].GetListValue()
	if list == nil {
		return set, model, errors.New("landmark service: response has no landmarks")
	}
	points := list.GetValues()
	if len(points) != detector.LandmarkCount {
		return set, model, fmt.Errorf("landmark service: expected %d landmarks, got %d", detector.LandmarkCount, len(points))
	}

	for i, v := range points {
		xy := v.GetListValue().GetValues()
		if len(xy) != 2 {
			return set, model, fmt.Errorf("landmark service: point %d has %d coordinates", i, len(xy))
		}
		set[i] = image.Pt(int(xy[0].GetNumberValue()), int(xy[1].GetNumberValue()))
	}
	return set, model, nil
}
