package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeWAV wraps little-endian 16-bit PCM in a WAV container. Chunks go to
// the transcription API in this format.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail.
	_ = writeWavHeader(&buf, len(pcm), sampleRate, channels, 16)
	buf.Write(pcm)
	return buf.Bytes()
}

func writeWavHeader(w io.Writer, dataSize, sampleRate, channels, bitsPerSample int) error {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	if _, err := w.Write([]byte("RIFF")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36+dataSize)); err != nil {
		return err
	}
	if _, err := w.Write([]byte("WAVEfmt ")); err != nil {
		return err
	}
	fields := []any{
		uint32(16), // fmt chunk size
		uint16(1),  // PCM
		uint16(channels),
		uint32(sampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitsPerSample),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if _, err := w.Write([]byte("data")); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, uint32(dataSize))
}

// StripWAVHeader returns the PCM payload of a canonical 44-byte-header WAV
// blob, or the input unchanged when it is not WAV.
func StripWAVHeader(data []byte) []byte {
	if len(data) > 44 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return data[44:]
	}
	return data
}

// ValidateWAV performs a shallow header check used by upload handlers.
func ValidateWAV(data []byte) error {
	if len(data) < 44 {
		return fmt.Errorf("wav data too short: %d bytes", len(data))
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return fmt.Errorf("missing RIFF/WAVE markers")
	}
	return nil
}
