package ws

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
)

func userIDString(userID int) string {
	return strconv.Itoa(userID)
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
