// Package prompt wraps a context blob and a question into the message pair
// sent to the completion API.
package prompt

import (
	"github.com/markdave123-py/smartbot/internal/core"
)

const systemInstruction = "You are a helpful AI assistant for the organization described below. " +
	"Answer questions based ONLY on the provided information. " +
	"If the answer is not in the information, say you don't have that information.\n\n" +
	"Organization Information:\n"

// Build returns exactly two messages: the system instruction with the context
// appended, then the verbatim question. No prior turns are ever included.
func Build(contextText, question string) []core.Message {
	return []core.Message{
		{Role: core.RoleSystem, Content: systemInstruction + contextText},
		{Role: core.RoleUser, Content: question},
	}
}
