package encoding

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
)

// ICC profile extraction and re-embedding. The stdlib decoders discard
// ancillary metadata, so profiles are pulled straight from the container
// before decoding and spliced back into the encoded output afterwards.

var (
	jpegSOI     = []byte{0xFF, 0xD8}
	iccJPEGTag  = []byte("ICC_PROFILE\x00")
	pngSig      = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	iccPNGChunk = "iCCP"
)

// ExtractProfile returns the embedded ICC profile of a JPEG or PNG buffer,
// or nil when the buffer carries none (or is some other format).
func ExtractProfile(data []byte) []byte {
	if bytes.HasPrefix(data, jpegSOI) {
		return extractJPEGProfile(data)
	}
	if bytes.HasPrefix(data, pngSig) {
		return extractPNGProfile(data)
	}
	return nil
}

// extractJPEGProfile walks the JPEG marker segments collecting APP2
// ICC_PROFILE chunks in sequence order.
func extractJPEGProfile(data []byte) []byte {
	var chunks [][]byte
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return nil
		}
		marker := data[pos+1]
		// Start of scan: no more metadata segments follow.
		if marker == 0xDA {
			break
		}
		if marker == 0xD8 || (marker >= 0xD0 && marker <= 0xD7) {
			pos += 2
			continue
		}
		segLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		if segLen < 2 || pos+2+segLen > len(data) {
			return nil
		}
		payload := data[pos+4 : pos+2+segLen]
		if marker == 0xE2 && len(payload) > len(iccJPEGTag)+2 && bytes.HasPrefix(payload, iccJPEGTag) {
			chunks = append(chunks, payload[len(iccJPEGTag)+2:])
		}
		pos += 2 + segLen
	}
	if len(chunks) == 0 {
		return nil
	}
	return bytes.Join(chunks, nil)
}

// extractPNGProfile finds the iCCP chunk and inflates its zlib-compressed
// payload.
func extractPNGProfile(data []byte) []byte {
	pos := len(pngSig)
	for pos+8 <= len(data) {
		chunkLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		chunkType := string(data[pos+4 : pos+8])
		if pos+8+chunkLen > len(data) {
			return nil
		}
		if chunkType == iccPNGChunk {
			payload := data[pos+8 : pos+8+chunkLen]
			// profile name (latin-1, NUL-terminated), compression method byte
			nul := bytes.IndexByte(payload, 0)
			if nul < 0 || nul+2 > len(payload) || payload[nul+1] != 0 {
				return nil
			}
			zr, err := zlib.NewReader(bytes.NewReader(payload[nul+2:]))
			if err != nil {
				return nil
			}
			defer zr.Close()
			profile, err := io.ReadAll(zr)
			if err != nil {
				return nil
			}
			return profile
		}
		if chunkType == "IDAT" || chunkType == "IEND" {
			return nil
		}
		pos += 8 + chunkLen + 4 // chunk CRC trails the payload
	}
	return nil
}

// APP2 segment overhead: length(2) + tag(12) + seq(1) + count(1).
const iccJPEGChunkMax = 65535 - 16

// EmbedJPEGProfile splices an ICC profile into an encoded JPEG, splitting it
// across APP2 segments when it exceeds a single segment's capacity.
func EmbedJPEGProfile(jpegData, profile []byte) ([]byte, error) {
	if !bytes.HasPrefix(jpegData, jpegSOI) {
		return nil, fmt.Errorf("not a JPEG buffer")
	}
	if len(profile) == 0 {
		return jpegData, nil
	}

	count := (len(profile) + iccJPEGChunkMax - 1) / iccJPEGChunkMax
	if count > 255 {
		return nil, fmt.Errorf("ICC profile too large: %d bytes", len(profile))
	}

	var out bytes.Buffer
	out.Write(jpegSOI)
	for i := 0; i < count; i++ {
		chunk := profile[i*iccJPEGChunkMax:]
		if len(chunk) > iccJPEGChunkMax {
			chunk = chunk[:iccJPEGChunkMax]
		}
		segLen := 2 + len(iccJPEGTag) + 2 + len(chunk)
		out.Write([]byte{0xFF, 0xE2})
		if err := binary.Write(&out, binary.BigEndian, uint16(segLen)); err != nil {
			return nil, err
		}
		out.Write(iccJPEGTag)
		out.WriteByte(byte(i + 1))
		out.WriteByte(byte(count))
		out.Write(chunk)
	}
	out.Write(jpegData[2:])
	return out.Bytes(), nil
}
