package audio

import (
	"bytes"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"

	platformerrors "voicetask-server-go/internal/platform/errors"
)

// Format tags the encoding of an uploaded audio chunk.
type Format string

const (
	FormatPCM Format = "pcm"
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// DecodeToPCM converts an uploaded chunk to raw little-endian 16-bit PCM.
// Browser recorders that cannot emit raw PCM send mp3 or wav; the pipeline
// works on PCM throughout.
func DecodeToPCM(data []byte, format Format) ([]byte, error) {
	switch format {
	case FormatPCM, "":
		return data, nil
	case FormatWAV:
		return StripWAVHeader(data), nil
	case FormatMP3:
		return decodeMP3(data)
	default:
		return nil, platformerrors.New(platformerrors.KindAudio, "decode",
			"unsupported audio format: "+string(format))
	}
}

func decodeMP3(data []byte) ([]byte, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindAudio, "decode.mp3",
			"failed to open mp3 stream", err)
	}

	// go-mp3 outputs 16-bit stereo; fold it down to mono.
	stereo, err := io.ReadAll(decoder)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindAudio, "decode.mp3",
			"failed to decode mp3 stream", err)
	}
	return stereoToMono(stereo), nil
}

func stereoToMono(pcm []byte) []byte {
	mono := make([]byte, 0, len(pcm)/2)
	for i := 0; i+3 < len(pcm); i += 4 {
		left := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		right := int16(uint16(pcm[i+2]) | uint16(pcm[i+3])<<8)
		mixed := int16((int32(left) + int32(right)) / 2)
		mono = append(mono, byte(mixed), byte(uint16(mixed)>>8))
	}
	return mono
}
