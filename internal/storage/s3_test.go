package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Minimal valid file headers for sniffing
var (
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	pngHeader  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 13}
	gifHeader  = []byte("GIF89a")
)

func TestSniffImageType(t *testing.T) {
	contentType, ext, err := SniffImageType(jpegHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	assert.Equal(t, ".jpg", ext)

	contentType, ext, err = SniffImageType(pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, ".png", ext)

	contentType, ext, err = SniffImageType(gifHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/gif", contentType)
	assert.Equal(t, ".gif", ext)
}

func TestSniffRejectsNonImages(t *testing.T) {
	_, _, err := SniffImageType([]byte("#!/bin/sh\nrm -rf /\n"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, _, err = SniffImageType([]byte(`<html><body>not an image</body></html>`))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, _, err = SniffImageType([]byte("%PDF-1.7\n"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}
