package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameCloneIsDeep(t *testing.T) {
	f := Frame{Data: []byte{1, 2, 3}, Width: 1, Height: 1, Channels: 3, Format: PixelFormatBGR24, Seq: 7}
	c := f.Clone()
	c.Data[0] = 99

	assert.Equal(t, byte(1), f.Data[0])
	assert.Equal(t, f.Seq, c.Seq)
	assert.True(t, f.Valid())
}

func TestFrameValid(t *testing.T) {
	assert.False(t, Frame{}.Valid())
	assert.False(t, Frame{Data: make([]byte, 5), Width: 2, Height: 1, Channels: 3}.Valid())
	assert.True(t, Frame{Data: make([]byte, 6), Width: 2, Height: 1, Channels: 3}.Valid())
}

func TestPipelineConfigValidate(t *testing.T) {
	ok := PipelineConfig{ConfidenceThreshold: 0.5, TargetFPS: 30, InferenceWidth: 640, InferenceHeight: 360}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.ConfidenceThreshold = 1.5
	assert.Error(t, bad.Validate())

	bad = ok
	bad.TargetFPS = 0
	assert.Error(t, bad.Validate())

	bad = ok
	bad.InferenceHeight = 0
	assert.Error(t, bad.Validate())
}

func TestPipelineConfigInterval(t *testing.T) {
	c := PipelineConfig{TargetFPS: 20}
	assert.Equal(t, 50*time.Millisecond, c.Interval())
}

func TestPatchApplyLeavesUnsetFields(t *testing.T) {
	base := PipelineConfig{ConfidenceThreshold: 0.5, TargetFPS: 30, InferenceWidth: 640, InferenceHeight: 360}
	th := float32(0.7)
	got := PipelineConfigPatch{ConfidenceThreshold: &th}.Apply(base)

	assert.Equal(t, float32(0.7), got.ConfidenceThreshold)
	assert.Equal(t, base.TargetFPS, got.TargetFPS)
	assert.Equal(t, base.InferenceWidth, got.InferenceWidth)
}
