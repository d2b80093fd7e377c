package core

import (
	"fmt"
	"strings"
)

// normalizeContent trims a chat message and enforces the size limit.
func normalizeContent(content string, maxBytes int) (string, *CoreError) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", coreError(ErrCodeBadRequest, "content is required")
	}
	if maxBytes > 0 && len(content) > maxBytes {
		return "", coreError(ErrCodeBadRequest, fmt.Sprintf("content exceeds %d bytes", maxBytes))
	}
	return content, nil
}
