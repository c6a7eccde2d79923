package session

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// QRSize is the edge length in pixels of the generated QR PNG.
const QRSize = 256

// DeriveConnectionID returns the first label of the public URL's hostname
// ("abcd1234" for https://abcd1234.tunnel.example.com). When the URL cannot
// be parsed or has no host a random identifier is returned instead.
func DeriveConnectionID(publicURL string) string {
	u, err := url.Parse(publicURL)
	if err != nil {
		return uuid.NewString()
	}
	host := u.Hostname()
	if host == "" {
		return uuid.NewString()
	}
	label, _, _ := strings.Cut(host, ".")
	if label == "" {
		return uuid.NewString()
	}
	return label
}

// EncodeQR renders content as a PNG QR code and returns it base64 encoded.
func EncodeQR(content string, size int) (string, error) {
	if size <= 0 {
		size = QRSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
