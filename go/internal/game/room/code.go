package room

import (
	"crypto/rand"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mcdev12/trivia/go/internal/models"
)

// CodeAlphabet excludes characters that are easy to confuse (0/O, 1/I).
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NormalizeCode upper-cases and trims a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCode checks length and character class. Clients run the same
// check before attempting to join.
func ValidateCode(code string, length int) error {
	if len(code) != length {
		return models.NewError(models.KindRoomNotFound, "room code must be %d characters", length)
	}
	for _, c := range code {
		if !strings.ContainsRune(CodeAlphabet, c) {
			return models.NewError(models.KindRoomNotFound, "room code contains invalid character %q", c)
		}
	}
	return nil
}

func generateCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	// 256 is a multiple of len(CodeAlphabet), so the modulo is unbiased.
	for i, b := range buf {
		buf[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
	}
	return string(buf), nil
}

// normalizeNickname trims a nickname, rejects invalid UTF-8 and
// non-printable runes, and bounds it by rune count.
func normalizeNickname(nickname string, maxLen int) (string, error) {
	n := strings.TrimSpace(nickname)
	if n == "" {
		return "", models.NewError(models.KindInvalidNickname, "nickname is required")
	}
	if !utf8.ValidString(n) {
		return "", models.NewError(models.KindInvalidNickname, "nickname is not valid UTF-8")
	}
	for _, r := range n {
		if !unicode.IsPrint(r) {
			return "", models.NewError(models.KindInvalidNickname, "nickname contains non-printable character %U", r)
		}
	}
	if utf8.RuneCountInString(n) > maxLen {
		return "", models.NewError(models.KindInvalidNickname, "nickname must be at most %d characters", maxLen)
	}
	return n, nil
}
