package utils

import (
	"crypto/sha256"
	"fmt"
)

// GenerateMessageID builds an RFC 5322 msg-id for the sending domain. The
// optional seed (usually the tracker id) is folded in as a short hash.
func GenerateMessageID(domain, seed string) string {
	localPart := fmt.Sprintf("%d.%s", Now().UnixMicro(), GenerateNanoID(12))
	if seed != "" {
		hash := sha256.Sum256([]byte(seed))
		localPart = fmt.Sprintf("%s.%x", localPart, hash[:4])
	}
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("<%s@%s>", localPart, domain)
}
