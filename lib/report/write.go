// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the stream codec for [Write].
type Compression string

const (
	CompressionNone Compression = ""
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression accepts "none", "zstd" and "lz4".
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	}
	return "", fmt.Errorf("report: unknown compression %q (want none, zstd or lz4)", name)
}

// Options controls [Write].
type Options struct {
	Compression Compression

	// Indent pretty-prints the JSON.
	Indent bool
}

// Write encodes report as JSON to w.
func Write(w io.Writer, report *Report, options Options) error {
	var (
		sink   io.Writer = w
		finish           = func() error { return nil }
	)
	switch options.Compression {
	case CompressionNone:
	case CompressionZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("report: zstd encoder: %w", err)
		}
		sink, finish = encoder, encoder.Close
	case CompressionLZ4:
		encoder := lz4.NewWriter(w)
		sink, finish = encoder, encoder.Close
	default:
		return fmt.Errorf("report: unknown compression %q", options.Compression)
	}

	encoder := json.NewEncoder(sink)
	if options.Indent {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(report); err != nil {
		finish()
		return fmt.Errorf("report: encoding: %w", err)
	}
	if err := finish(); err != nil {
		return fmt.Errorf("report: flushing %s stream: %w", options.Compression, err)
	}
	return nil
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Read decodes a report written by [Write], detecting the compression
// from the stream's magic number.
func Read(r io.Reader) (*Report, error) {
	buffered := bufio.NewReader(r)
	head, err := buffered.Peek(4)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("report: reading header: %w", err)
	}

	var source io.Reader = buffered
	switch {
	case bytes.Equal(head, zstdMagic):
		decoder, err := zstd.NewReader(buffered)
		if err != nil {
			return nil, fmt.Errorf("report: zstd decoder: %w", err)
		}
		defer decoder.Close()
		source = decoder
	case bytes.Equal(head, lz4Magic):
		source = lz4.NewReader(buffered)
	}

	var report Report
	if err := json.NewDecoder(source).Decode(&report); err != nil {
		return nil, fmt.Errorf("report: decoding: %w", err)
	}
	return &report, nil
}
