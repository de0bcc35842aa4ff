package evaluator

import (
	"strings"
	"time"

	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/templating"
)

const (
	messageKey = "message"
	// singleBrace is the legacy shorthand for "the trigger's own message".
	singleBrace = "{message}"
	doubleBrace = "{{message}}"
	hold        = "\x00msg\x00"
)

// renderParams merges the trigger payload into the reaction parameters.
//
// A configured message containing the {message} shorthand gets the trigger's
// message spliced in. A missing message becomes the trigger message verbatim.
// Everything else, message included, goes through {{key}} substitution
// against one variable snapshot, and the message is newline-normalised.
func renderParams(reaction map[string]any, payload connector.Payload, now time.Time) connector.Params {
	params := connector.Params(reaction).Clone()
	triggerMsg := payload.Message()
	vars := templating.BuildVariables(payload, now)

	raw, isString := params[messageKey].(string)
	verbatim := false
	switch {
	case isString && hasShorthand(raw):
		params[messageKey] = spliceShorthand(raw, triggerMsg)
	case params[messageKey] == nil:
		delete(params, messageKey)
		if triggerMsg != "" {
			params[messageKey] = triggerMsg
			verbatim = true
		}
	}

	for k, v := range params {
		if k == messageKey && verbatim {
			continue
		}
		params[k] = templating.RenderDeep(v, vars)
	}
	if s, ok := params[messageKey].(string); ok {
		params[messageKey] = templating.NormalizeNewlines(s)
	}
	return params
}

// hasShorthand reports a {message} that is not part of a {{message}} placeholder.
func hasShorthand(s string) bool {
	return strings.Contains(strings.ReplaceAll(s, doubleBrace, ""), singleBrace)
}

func spliceShorthand(s, msg string) string {
	s = strings.ReplaceAll(s, doubleBrace, hold)
	s = strings.ReplaceAll(s, singleBrace, msg)
	return strings.ReplaceAll(s, hold, doubleBrace)
}
