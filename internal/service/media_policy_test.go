package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grit-challenge-api/internal/dto"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
)

func TestClassifySniffsMissingContentType(t *testing.T) {
	kind, contentType, ok := Classify(dto.MediaUpload{Filename: "x", Data: []byte("\x89PNG\r\n\x1a\n0000")})
	require.True(t, ok)
	assert.Equal(t, MediaImage, kind)
	assert.Equal(t, "image/png", contentType)

	kind, _, ok = Classify(dto.MediaUpload{Filename: "clip.mp4", ContentType: "video/mp4; codecs=avc1", Data: []byte("x")})
	require.True(t, ok)
	assert.Equal(t, MediaVideo, kind)

	_, contentType, ok = Classify(dto.MediaUpload{Filename: "notes.txt", ContentType: "application/octet-stream", Data: []byte("plain words")})
	assert.False(t, ok)
	assert.Equal(t, "text/plain", contentType)
}

func TestMediaPolicyValidate(t *testing.T) {
	policy := DefaultMediaPolicy()
	video := dto.MediaUpload{Filename: "clip.mp4", ContentType: "video/mp4", Size: 1 << 20, Data: []byte("v")}

	cases := []struct {
		name    string
		uploads []dto.MediaUpload
		wantErr bool
	}{
		{name: "none", uploads: nil},
		{name: "three images and a video", uploads: []dto.MediaUpload{photo("a.png"), photo("b.png"), photo("c.png"), video}},
		{name: "four images", uploads: []dto.MediaUpload{photo("a.png"), photo("b.png"), photo("c.png"), photo("d.png")}, wantErr: true},
		{name: "two videos", uploads: []dto.MediaUpload{video, video}, wantErr: true},
		{name: "oversized image", uploads: []dto.MediaUpload{{Filename: "big.png", ContentType: "image/png", Size: 11 << 20, Data: []byte("x")}}, wantErr: true},
		{name: "oversized video", uploads: []dto.MediaUpload{{Filename: "big.mp4", ContentType: "video/mp4", Size: 31 << 20, Data: []byte("x")}}, wantErr: true},
		{name: "empty file", uploads: []dto.MediaUpload{{Filename: "empty.png", ContentType: "image/png"}}, wantErr: true},
		{name: "document", uploads: []dto.MediaUpload{{Filename: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := policy.Validate(tc.uploads)
			if tc.wantErr {
				assert.ErrorIs(t, err, appErrors.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}
