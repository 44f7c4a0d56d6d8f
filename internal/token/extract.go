package token

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"callwatch/internal/llm"
)

// ErrExtraction reports a reply that does not follow the two-line contract.
var ErrExtraction = errors.New("token name extraction failed")

// Candidate is the token name and chain read out of a free text call.
type Candidate struct {
	Name  string
	Chain string
}

const extractionTemplate = `Analyze this message and determine whether a crypto token name and blockchain are mentioned. If so, provide this information back to me in the following format:
Token Name : <token_name_value>
Token Platform/Blockchain : <blockchain_value>

Insert your determination for the crypto token name in the <token_name_value> placeholder, and your determination of the token's blockchain in the <blockchain_value> placeholder. If either value cannot be determined, write none. Your response should contain the two lines containing this information, and nothing else.
Message - %s`

var (
	nameLine  = regexp.MustCompile(`(?mi)^[ \t*_-]*Token Name[ \t*_]*:[ \t]*(.+?)[ \t\r]*$`)
	chainLine = regexp.MustCompile(`(?mi)^[ \t*_-]*Token Platform(?:[ \t]*/[ \t]*Blockchain)?[ \t*_]*:[ \t]*(.+?)[ \t\r]*$`)
)

// ExtractionPrompt builds the single user segment that asks for the token
// name and chain of a message.
func ExtractionPrompt(text string) []llm.Message {
	return []llm.Message{llm.User(fmt.Sprintf(extractionTemplate, text))}
}

// ParseExtraction reads the two labelled lines out of a completion reply.
func ParseExtraction(reply string) (Candidate, error) {
	name, err := labelled(nameLine, reply, "Token Name")
	if err != nil {
		return Candidate{}, err
	}
	chain, err := labelled(chainLine, reply, "Token Platform/Blockchain")
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{Name: name, Chain: chain}, nil
}

func labelled(re *regexp.Regexp, reply, label string) (string, error) {
	m := re.FindStringSubmatch(reply)
	if m == nil {
		return "", fmt.Errorf("%w: no %q line", ErrExtraction, label)
	}
	value := strings.Trim(strings.TrimSpace(m[1]), "*_`\"'<>")
	switch strings.ToLower(value) {
	case "", "none", "unknown", "n/a", "null":
		return "", fmt.Errorf("%w: empty %q value", ErrExtraction, label)
	}
	return value, nil
}
