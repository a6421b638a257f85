package social

import (
	"errors"
	"net/url"

	"github.com/skip2/go-qrcode"
)

const (
	friendCodeScheme = "fitlog"
	// DefaultFriendCodeSize is the PNG edge length in pixels.
	DefaultFriendCodeSize = 256
)

// QREncoder renders content as a PNG QR code.
type QREncoder func(content string, level qrcode.RecoveryLevel, size int) ([]byte, error)

// FriendCodeURL is the deep link encoded in a user's friend code.
func FriendCodeURL(username string) string {
	link := url.URL{
		Scheme:   friendCodeScheme,
		Host:     "friends",
		Path:     "/add",
		RawQuery: url.Values{"username": []string{username}}.Encode(),
	}
	return link.String()
}

// FriendCodePNG renders the friend code of username. A nil encoder uses qrcode.Encode.
func FriendCodePNG(username string, size int, encode QREncoder) ([]byte, error) {
	if username == "" {
		return nil, errors.New("social: username is required for a friend code")
	}
	if size <= 0 {
		size = DefaultFriendCodeSize
	}
	if encode == nil {
		encode = qrcode.Encode
	}
	return encode(FriendCodeURL(username), qrcode.Medium, size)
}
