package detection

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"espcam-worker-go/internal/helpers"
	"espcam-worker-go/internal/models"
)

// DetectorServer is the server side of DetectorServiceName
type DetectorServer interface {
	Detect(ctx context.Context, jpeg *wrapperspb.BytesValue) (*structpb.Struct, error)
	Labels(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error)
}

var detectorServiceDesc = grpc.ServiceDesc{
	ServiceName: DetectorServiceName,
	HandlerType: (*DetectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Detect",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(wrapperspb.BytesValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(DetectorServer).Detect(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: detectMethod}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(DetectorServer).Detect(ctx, req.(*wrapperspb.BytesValue))
				})
			},
		},
		{
			MethodName: "Labels",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(emptypb.Empty)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(DetectorServer).Labels(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: labelsMethod}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(DetectorServer).Labels(ctx, req.(*emptypb.Empty))
				})
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "espcam/detection/v1/detector",
}

// RegisterDetectorServer attaches srv to a gRPC server
func RegisterDetectorServer(s grpc.ServiceRegistrar, srv DetectorServer) {
	s.RegisterService(&detectorServiceDesc, srv)
}

// ModelServer exposes a local Model over gRPC so low-power workers can offload inference
type ModelServer struct {
	mu     sync.Mutex
	model  Model
	decode func([]byte, uint64, time.Time) (models.Frame, error)
	seq    uint64
}

func NewModelServer(model Model) *ModelServer {
	return &ModelServer{model: model, decode: helpers.DecodeJPEG}
}

func (s *ModelServer) Detect(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if len(in.GetValue()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty image")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	frame, err := s.decode(in.GetValue(), s.seq, time.Now())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode image: %v", err)
	}
	raw, err := s.model.Predict(frame)
	if err != nil {
		log.Error().Err(err).Str("model", s.model.Name()).Msg("Remote inference failed")
		return nil, status.Errorf(codes.Internal, "inference: %v", err)
	}
	return EncodeRemoteDetections(raw)
}

func (s *ModelServer) Labels(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	labels := s.model.Labels()
	vals := make([]interface{}, len(labels))
	for i, l := range labels {
		vals[i] = l
	}
	list, err := structpb.NewList(vals)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "labels: %v", err)
	}
	return list, nil
}

// EncodeRemoteDetections is the inverse of the client-side decoding
func EncodeRemoteDetections(raw []RawDetection) (*structpb.Struct, error) {
	items := make([]interface{}, 0, len(raw))
	for _, d := range raw {
		items = append(items, map[string]interface{}{
			"x1":         float64(d.X1),
			"y1":         float64(d.Y1),
			"x2":         float64(d.X2),
			"y2":         float64(d.Y2),
			"class_id":   float64(d.ClassID),
			"confidence": float64(d.Confidence),
		})
	}
	return structpb.NewStruct(map[string]interface{}{"detections": items})
}
