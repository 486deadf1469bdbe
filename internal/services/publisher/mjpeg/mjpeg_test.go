package mjpeg

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"espcam-worker-go/internal/models"
)

func fakeEncoder(f models.Frame, quality int) ([]byte, error) {
	if f.Seq == 0 {
		return nil, errors.New("bad frame")
	}
	return []byte(fmt.Sprintf("jpeg-%d-q%d", f.Seq, quality)), nil
}

func newTestPublisher() *Publisher {
	return NewPublisher(80, nil).WithEncoder(fakeEncoder).WithKeepalive(time.Minute)
}

func openStream(t *testing.T, p *Publisher) (*multipart.Reader, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(p.StreamMJPEGHTTP))
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/x-mixed-replace", mediaType)
	require.Equal(t, "frame", params["boundary"])

	return multipart.NewReader(resp.Body, params["boundary"]), func() {
		resp.Body.Close()
		srv.Close()
	}
}

func readPart(t *testing.T, mr *multipart.Reader) string {
	t.Helper()
	part, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
	body, err := io.ReadAll(part)
	require.NoError(t, err)
	return string(body)
}

func TestPublishFrameStoresLatest(t *testing.T) {
	p := newTestPublisher()
	_, _, ok := p.LatestJPEG()
	assert.False(t, ok)

	require.NoError(t, p.PublishFrame(models.Frame{Seq: 3}))
	require.NoError(t, p.Present(models.Frame{Seq: 4}, models.DetectionResult{}, models.CycleStats{}))

	jpeg, version, ok := p.LatestJPEG()
	require.True(t, ok)
	assert.Equal(t, "jpeg-4-q80", string(jpeg))
	assert.Equal(t, uint64(2), version)
	assert.False(t, p.UpdatedAt().IsZero())

	p.Clear()
	_, _, ok = p.LatestJPEG()
	assert.False(t, ok)
}

func TestPublishFrameEncodeError(t *testing.T) {
	p := newTestPublisher()
	err := p.PublishFrame(models.Frame{Seq: 0})
	assert.Error(t, err)
	_, _, ok := p.LatestJPEG()
	assert.False(t, ok)
}

func TestStreamDeliversFrames(t *testing.T) {
	p := newTestPublisher()
	require.NoError(t, p.PublishFrame(models.Frame{Seq: 1}))

	mr, closeFn := openStream(t, p)
	defer closeFn()

	assert.Equal(t, "jpeg-1-q80", readPart(t, mr))
	require.Eventually(t, func() bool { return p.Viewers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.PublishFrame(models.Frame{Seq: 2}))
	assert.Equal(t, "jpeg-2-q80", readPart(t, mr))
}

func TestStreamServesEveryViewer(t *testing.T) {
	p := newTestPublisher()
	require.NoError(t, p.PublishFrame(models.Frame{Seq: 1}))

	first, closeFirst := openStream(t, p)
	defer closeFirst()
	second, closeSecond := openStream(t, p)
	defer closeSecond()

	readPart(t, first)
	readPart(t, second)
	require.Eventually(t, func() bool { return p.Viewers() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.PublishFrame(models.Frame{Seq: 5}))
	assert.Equal(t, "jpeg-5-q80", readPart(t, first))
	assert.Equal(t, "jpeg-5-q80", readPart(t, second))
}

func TestShutdownEndsStreams(t *testing.T) {
	p := newTestPublisher()
	require.NoError(t, p.PublishFrame(models.Frame{Seq: 1}))

	mr, closeFn := openStream(t, p)
	defer closeFn()
	readPart(t, mr)
	require.Eventually(t, func() bool { return p.Viewers() == 1 }, time.Second, 5*time.Millisecond)

	p.Shutdown()
	_, err := mr.NextPart()
	assert.Error(t, err)
	assert.Zero(t, p.Viewers())

	rec := httptest.NewRecorder()
	p.StreamMJPEGHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
