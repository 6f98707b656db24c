package llm

import (
	"fmt"
	"strings"
)

// Conversation roles accepted by the completion API. Stored messages carry
// uppercase roles; callers map them down before building a prompt.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of the prompt sent upstream.
type Message struct {
	Role    string
	Content string
}

// EstimateTokens approximates the token count of a text as ceil(len/4).
// Deliberately crude; it only has to keep prompts under the context budget.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// ValidateMessages rejects prompts the upstream API would refuse: an empty
// slice, an unknown or non-lowercase role, blank content, or a final message
// that is not from the user.
func ValidateMessages(msgs []Message) error {
	if len(msgs) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, m := range msgs {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("message %d: content must not be blank", i)
		}
	}
	if last := msgs[len(msgs)-1]; last.Role != RoleUser {
		return fmt.Errorf("last message must be from the user, got %q", last.Role)
	}
	return nil
}

// TruncateToBudget drops the oldest messages until the estimated token total
// fits within budget. The newest message always survives, even when it alone
// exceeds the budget.
func TruncateToBudget(msgs []Message, budget int) []Message {
	if len(msgs) == 0 {
		return msgs
	}
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	start := 0
	for total > budget && start < len(msgs)-1 {
		total -= EstimateTokens(msgs[start].Content)
		start++
	}
	return msgs[start:]
}
