package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// ComputeHash reproduces the backend's content hash: SHA-256 over the
// sorted-key JSON of user_id, title, content and timestamp, serialised with
// ", " and ": " separators and non-ASCII escaped as \uXXXX.
func ComputeHash(userID int64, title, content, timestamp string) string {
	var b strings.Builder
	b.WriteString(`{"content": `)
	writePyString(&b, content)
	b.WriteString(`, "timestamp": `)
	writePyString(&b, timestamp)
	b.WriteString(`, "title": `)
	writePyString(&b, title)
	b.WriteString(`, "user_id": `)
	b.WriteString(strconv.FormatInt(userID, 10))
	b.WriteString("}")
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyHash reports whether p.Hash matches its content.
func VerifyHash(p Prediction) bool {
	if p.Hash == "" {
		return false
	}
	uid := p.UserID
	if uid == 0 {
		uid = p.User.ID
	}
	return strings.EqualFold(p.Hash, ComputeHash(uid, p.Title, p.Content, p.Timestamp.Raw))
}

func writePyString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			switch {
			case r < 0x20 || (r >= 0x7f && r < 0x10000):
				fmt.Fprintf(b, `\u%04x`, r)
			case r >= 0x10000:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(b, `\u%04x\u%04x`, hi, lo)
			default:
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}
