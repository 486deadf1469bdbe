package detection

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"espcam-worker-go/internal/helpers"
	"espcam-worker-go/internal/models"
)

// DetectorServiceName is the gRPC service the remote backend talks to.
//
//	rpc Detect(google.protobuf.BytesValue) returns (google.protobuf.Struct)   // JPEG in, {"detections":[...]} out
//	rpc Labels(google.protobuf.Empty) returns (google.protobuf.ListValue)
const DetectorServiceName = "espcam.detection.v1.Detector"

const (
	detectMethod = "/" + DetectorServiceName + "/Detect"
	labelsMethod = "/" + DetectorServiceName + "/Labels"
)

// RemoteModel sends JPEG frames to an inference server over gRPC
type RemoteModel struct {
	mu       sync.RWMutex
	conn     *grpc.ClientConn
	endpoint string
	labels   Labels
	timeout  time.Duration
	quality  int
	encode   func(models.Frame, int) ([]byte, error)
}

// DialRemote connects, health-checks the service and fetches its label table unless
// one was supplied locally.
func DialRemote(endpoint string, labels Labels, timeout time.Duration, jpegQuality int, dialOpts ...grpc.DialOption) (*RemoteModel, error) {
	target, creds, err := parseGRPCEndpoint(endpoint)
	if err != nil {
		return nil, unavailable(BackendRemote, fmt.Errorf("failed to parse AI endpoint %s: %w", endpoint, err))
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if jpegQuality <= 0 {
		jpegQuality = helpers.HighQuality
	}

	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, dialOpts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, unavailable(BackendRemote, fmt.Errorf("failed to connect to AI service at %s: %w", target, err))
	}

	m := &RemoteModel{
		conn:     conn,
		endpoint: target,
		labels:   labels,
		timeout:  timeout,
		quality:  jpegQuality,
		encode:   helpers.EncodeJPEG,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: DetectorServiceName})
	if err != nil {
		conn.Close()
		return nil, unavailable(BackendRemote, fmt.Errorf("health check %s: %w", target, err))
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		conn.Close()
		return nil, unavailable(BackendRemote, fmt.Errorf("service %s is %s", target, resp.GetStatus()))
	}

	if len(m.labels) == 0 {
		remoteLabels, err := m.fetchLabels(ctx)
		if err != nil {
			conn.Close()
			return nil, err
		}
		m.labels = remoteLabels
	}

	log.Info().
		Str("ai_endpoint", target).
		Bool("use_tls", creds.Info().SecurityProtocol == "tls").
		Int("labels", len(m.labels)).
		Msg("AI gRPC service connected and healthy")
	return m, nil
}

func (m *RemoteModel) fetchLabels(ctx context.Context) (Labels, error) {
	list := &structpb.ListValue{}
	if err := m.conn.Invoke(ctx, labelsMethod, &emptypb.Empty{}, list); err != nil {
		return nil, classify(fmt.Errorf("fetch labels: %w", err))
	}
	labels := make(Labels, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		labels = append(labels, v.GetStringValue())
	}
	return labels, nil
}

func (m *RemoteModel) Name() string { return BackendRemote }

func (m *RemoteModel) Labels() Labels {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.labels
}

// IsConnected reports whether the channel is usable
func (m *RemoteModel) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return false
	}
	state := m.conn.GetState()
	return state == connectivity.Ready || state == connectivity.Idle || state == connectivity.Connecting
}

func (m *RemoteModel) Predict(frame models.Frame) ([]RawDetection, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return nil, unavailable(BackendRemote, fmt.Errorf("connection closed"))
	}

	jpeg, err := m.encode(frame, m.quality)
	if err != nil {
		return nil, runtimeFailure(BackendRemote, fmt.Errorf("encode frame: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := conn.Invoke(ctx, detectMethod, wrapperspb.Bytes(jpeg), resp); err != nil {
		return nil, classify(err)
	}
	return decodeRemoteDetections(resp)
}

// classify maps gRPC status codes onto the inference error kinds
func classify(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.Unimplemented, codes.NotFound:
		return unavailable(BackendRemote, err)
	default:
		return runtimeFailure(BackendRemote, err)
	}
}

func decodeRemoteDetections(resp *structpb.Struct) ([]RawDetection, error) {
	field, ok := resp.GetFields()["detections"]
	if !ok {
		return []RawDetection{}, nil
	}
	list := field.GetListValue()
	if list == nil {
		return nil, runtimeFailure(BackendRemote, fmt.Errorf("detections is not a list"))
	}

	out := make([]RawDetection, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, runtimeFailure(BackendRemote, fmt.Errorf("detection %d is not an object", i))
		}
		f := s.GetFields()
		num := func(k string) float32 { return float32(f[k].GetNumberValue()) }
		out = append(out, RawDetection{
			X1:         num("x1"),
			Y1:         num("y1"),
			X2:         num("x2"),
			Y2:         num("y2"),
			ClassID:    int(f["class_id"].GetNumberValue()),
			Confidence: num("confidence"),
		})
	}
	return out, nil
}

func (m *RemoteModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	log.Info().Str("ai_endpoint", m.endpoint).Msg("AI gRPC connection closed")
	return err
}

// parseGRPCEndpoint normalizes host[:port] or URL forms and picks TLS for https
// and the usual TLS ports.
func parseGRPCEndpoint(endpoint string) (string, credentials.TransportCredentials, error) {
	if !strings.Contains(endpoint, "://") {
		if strings.Contains(endpoint, ".") && !strings.Contains(endpoint, ":") {
			endpoint = "https://" + endpoint + ":443"
		} else if strings.Contains(endpoint, ":") {
			parts := strings.Split(endpoint, ":")
			if len(parts) == 2 {
				if port, err := strconv.Atoi(parts[1]); err == nil && (port == 443 || port == 8443 || port == 9443) {
					endpoint = "https://" + endpoint
				} else {
					endpoint = "http://" + endpoint
				}
			}
		} else {
			endpoint = "https://" + endpoint + ":443"
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host = u.Hostname() + ":443"
		case "http":
			host = u.Hostname() + ":80"
		default:
			return "", nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
		}
	}

	var creds credentials.TransportCredentials
	switch u.Scheme {
	case "https":
		creds = credentials.NewTLS(&tls.Config{ServerName: u.Hostname()})
	case "http":
		creds = insecure.NewCredentials()
	default:
		return "", nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	return host, creds, nil
}
