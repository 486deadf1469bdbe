package source

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// TargetKind says which backend opens a target
type TargetKind int

const (
	// TargetDevice is a local capture device index such as "0"
	TargetDevice TargetKind = iota
	// TargetHTTPCamera is an HTTP camera exposing "/" and "/stream" (ESP32-CAM style)
	TargetHTTPCamera
	// TargetURL is any other URL handed to OpenCV (rtsp://, file paths)
	TargetURL
)

func (k TargetKind) String() string {
	switch k {
	case TargetDevice:
		return "device"
	case TargetHTTPCamera:
		return "http_camera"
	case TargetURL:
		return "url"
	default:
		return "unknown"
	}
}

// Target is a parsed source address
type Target struct {
	Raw    string
	Kind   TargetKind
	Device int
	Base   string // normalized base URL for HTTP cameras, raw URL otherwise
}

// ProbeURL is the liveness endpoint of an HTTP camera
func (t Target) ProbeURL() string { return t.Base + "/" }

// StreamURL is the MJPEG endpoint of an HTTP camera
func (t Target) StreamURL() string { return t.Base + "/stream" }

func (t Target) String() string {
	if t.Kind == TargetDevice {
		return "device:" + strconv.Itoa(t.Device)
	}
	return t.Base
}

// NormalizeBaseURL keeps an existing scheme, otherwise assumes http://, and drops trailing slashes.
func NormalizeBaseURL(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	return strings.TrimRight(s, "/")
}

// ParseTarget classifies a user-supplied target string.
func ParseTarget(raw string) (Target, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Target{}, fmt.Errorf("empty target")
	}

	if idx, err := strconv.Atoi(s); err == nil {
		if idx < 0 {
			return Target{}, fmt.Errorf("invalid device index %d", idx)
		}
		return Target{Raw: raw, Kind: TargetDevice, Device: idx}, nil
	}

	// Local video files go straight to OpenCV
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") {
		return Target{Raw: raw, Kind: TargetURL, Base: s}, nil
	}

	base := NormalizeBaseURL(s)
	u, err := url.Parse(base)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target %q: %w", raw, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return Target{}, fmt.Errorf("invalid target %q: missing host", raw)
		}
		return Target{Raw: raw, Kind: TargetHTTPCamera, Base: base}, nil
	default:
		return Target{Raw: raw, Kind: TargetURL, Base: s}, nil
	}
}
