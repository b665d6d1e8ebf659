/*
Package randx provides generation of unique identifiers and random avatar attributes.

Connection and message ids are UUID v4 strings; avatar colors and starting
positions use crypto/rand so two clients starting at the same instant do not
collide on the same look.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"

	"github.com/google/uuid"
)

const (
	// AvatarURLTemplate is the dicebear endpoint used to derive an avatar image from a seed.
	AvatarURLTemplate = "https://api.dicebear.com/7.x/bottts/svg?seed=%s"

	// ColorSaturation and ColorLightness fix the avatar palette so only the hue varies.
	ColorSaturation = 70
	ColorLightness  = 60
)

// ConnectionID generates the opaque server-assigned id for one live connection.
func ConnectionID() string {
	return uuid.New().String()
}

// MessageID generates a UUID v4 string to serve as a unique message identifier.
func MessageID() string {
	return uuid.New().String()
}

// randInt returns a cryptographically random int in [0, max).
func randInt(max int64) (int64, error) {
	num, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0, fmt.Errorf("failed to generate random number: %v", err)
	}
	return num.Int64(), nil
}

// AvatarColor generates a random hsl() accent color with a fixed saturation and lightness.
func AvatarColor() (string, error) {
	hue, err := randInt(360)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", hue, ColorSaturation, ColorLightness), nil
}

// StartPosition generates a random starting coordinate inside the given bounds.
func StartPosition(maxX, maxY int) (int, int, error) {
	x, err := randInt(int64(maxX))
	if err != nil {
		return 0, 0, err
	}
	y, err := randInt(int64(maxY))
	if err != nil {
		return 0, 0, err
	}
	return int(x), int(y), nil
}

// AvatarURL derives a stable avatar image URL from the given seed name.
func AvatarURL(seed string) string {
	return fmt.Sprintf(AvatarURLTemplate, url.QueryEscape(seed))
}
