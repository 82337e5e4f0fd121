package syncstore

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

// countVariables parses dotenv content and returns the number of distinct
// variables it defines. Parsing happens once, at the store boundary; stored
// content is the raw bytes, not a re-serialized form.
func countVariables(content string) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, nil
	}
	vars, errParse := godotenv.Unmarshal(content)
	if errParse != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidContent, errParse)
	}
	return len(vars), nil
}
