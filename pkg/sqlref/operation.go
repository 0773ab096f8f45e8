package sqlref

import (
	"strings"

	"github.com/leapstack-labs/leaprules/pkg/core"
)

// DetectOperation classifies a rule body. A blank body with a decision table
// is OperationDecisionTable. A WITH statement resolves to the verb of its main
// statement. Anything unrecognised is OperationOther; detection never fails.
func DetectOperation(sql, decisionTableID string) core.OperationType {
	if strings.TrimSpace(sql) == "" {
		if decisionTableID != "" {
			return core.OperationDecisionTable
		}
		return core.OperationOther
	}

	toks, _ := Tokenize(sql)
	if len(toks) == 0 {
		return core.OperationOther
	}
	if !toks[0].Is(TOKEN_WITH, TOKEN_LPAREN) {
		return operationOf(toks[0])
	}

	// First verb outside parentheses is the main statement.
	depth := 0
	for _, t := range toks {
		switch t.Type {
		case TOKEN_LPAREN:
			depth++
		case TOKEN_RPAREN:
			depth--
		default:
			if depth == 0 {
				if op := operationOf(t); op != core.OperationOther {
					return op
				}
			}
		}
	}

	// (SELECT ...) UNION (SELECT ...) has no verb at depth zero.
	for _, t := range toks {
		if op := operationOf(t); op != core.OperationOther {
			return op
		}
	}
	return core.OperationOther
}
