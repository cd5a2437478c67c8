package classifier

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Image decoding errors.
var (
	ErrInvalidImage  = errors.New("invalid image")
	ErrImageTooLarge = errors.New("image too large")
)

var stripSpace = strings.NewReplacer("\n", "", "\r", "", " ", "")

// Image is a decoded upload.
type Image struct {
	Data     []byte
	MIMEType string
	// Base64 is the payload without any data URL prefix.
	Base64 string
	// Digest is the hex BLAKE2b-256 of Data.
	Digest string
}

// DataURL renders the image as a data: URL.
func (i *Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64
}

// Extension returns a file extension for the MIME type.
func (i *Image) Extension() string {
	switch i.MIMEType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/heic":
		return ".heic"
	default:
		return ".bin"
	}
}

// DecodeImage accepts raw base64 or a data URL. maxBytes <= 0 disables the
// size check.
func DecodeImage(raw string, maxBytes int) (*Image, error) {
	payload := strings.TrimSpace(raw)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.Contains(payload[:comma], ";base64") {
			return nil, fmt.Errorf("%w: malformed data URL", ErrInvalidImage)
		}
		payload = payload[comma+1:]
	}
	payload = stripSpace.Replace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	// Cheap pre-check before allocating the decoded buffer.
	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+2 {
		return nil, ErrImageTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: not valid base64", ErrInvalidImage)
		}
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, ErrImageTooLarge
	}

	mimeType := sniffImageType(data)
	if mimeType == "" {
		return nil, fmt.Errorf("%w: unsupported image format", ErrInvalidImage)
	}

	sum := blake2b.Sum256(data)
	return &Image{
		Data:     data,
		MIMEType: mimeType,
		Base64:   base64.StdEncoding.EncodeToString(data),
		Digest:   hex.EncodeToString(sum[:]),
	}, nil
}

// sniffImageType returns an image/* MIME type or "" for non-images.
func sniffImageType(data []byte) string {
	if isHEIC(data) {
		return "image/heic"
	}
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return ""
}

// isHEIC checks for an ISO-BMFF ftyp box with a HEIF brand. iPhone cameras
// produce these and the standard sniffer does not know them.
func isHEIC(data []byte) bool {
	if len(data) < 12 || !bytes.Equal(data[4:8], []byte("ftyp")) {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}
