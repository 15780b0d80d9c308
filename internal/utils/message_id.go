package utils

import (
	"crypto/sha256"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GenerateMessageID builds an RFC 5322 message id for an outbound email. The
// local part is timestamp.random so ids sort roughly by submission time; when
// metadata is given, a short hash of it is appended so retries of the same
// logical message stay correlated.
func GenerateMessageID(domain, metadata string) string {
	random, err := gonanoid.Generate(nanoidAlphabet, 12)
	if err != nil {
		panic(err)
	}

	localPart := fmt.Sprintf("%d.%s", Now().UnixMicro(), random)
	if metadata != "" {
		digest := sha256.Sum256([]byte(metadata))
		localPart = fmt.Sprintf("%s.%x", localPart, digest[:4])
	}
	return fmt.Sprintf("<%s@%s>", localPart, domain)
}
