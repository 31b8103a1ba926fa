package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"audio-blinkshot/internal/application"
)

// EncodeWAV wraps little-endian PCM in a canonical 44-byte WAV header.
func EncodeWAV(pcm []byte, format application.AudioFormat) ([]byte, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", format.BitDepth)
	}
	if format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid audio format %+v", format)
	}

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	blockAlign := format.Channels * format.BitDepth / 8
	dataSize := len(pcm)
	fileSize := 36 + dataSize

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int16(format.Channels))
	binary.Write(&buf, binary.LittleEndian, int32(format.SampleRate))
	binary.Write(&buf, binary.LittleEndian, int32(format.SampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, int16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, int16(format.BitDepth))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, int32(dataSize))
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// DecodeWAV extracts 16-bit PCM and its format from a RIFF/WAVE file.
func DecodeWAV(data []byte) ([]byte, application.AudioFormat, error) {
	var format application.AudioFormat

	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, format, errors.New("not a RIFF/WAVE file")
	}

	var pcm []byte
	haveFmt := false
	for offset := 12; offset+8 <= len(data); {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, format, errors.New("short fmt chunk")
			}
			if tag := binary.LittleEndian.Uint16(data[body : body+2]); tag != 1 {
				return nil, format, fmt.Errorf("unsupported wav encoding %d", tag)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			format.BitDepth = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		// chunks are word aligned
		offset = body + size + size%2
	}

	if !haveFmt {
		return nil, format, errors.New("missing fmt chunk")
	}
	if pcm == nil {
		return nil, format, errors.New("missing data chunk")
	}
	if format.BitDepth != 16 {
		return nil, format, fmt.Errorf("unsupported bit depth %d", format.BitDepth)
	}
	return pcm, format, nil
}
