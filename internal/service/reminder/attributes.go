package reminder

import (
	"strings"

	"github.com/northcart/reminder-engine/internal/domain"
)

// TokenAttributeParser decodes the storefront's flat attribute encoding:
// semicolon-separated "attributeId:valueId" pairs. Malformed pairs are
// dropped rather than reported, matching how the platform treats bad
// attribute data everywhere else.
type TokenAttributeParser struct{}

func (TokenAttributeParser) Parse(raw string) []domain.AttributeValue {
	if raw == "" {
		return nil
	}
	var out []domain.AttributeValue
	for _, token := range strings.Split(raw, ";") {
		attrID, valueID, ok := splitAttributeToken(strings.TrimSpace(token))
		if !ok {
			continue
		}
		out = append(out, domain.AttributeValue{AttributeID: attrID, ValueID: valueID})
	}
	return out
}

// splitAttributeToken splits an "attributeId:valueId" token. ok is false
// when the separator is missing or either side is empty.
func splitAttributeToken(token string) (attrID, valueID string, ok bool) {
	i := strings.Index(token, ":")
	if i <= 0 || i == len(token)-1 {
		return "", "", false
	}
	return token[:i], token[i+1:], true
}
