package extract

import (
	"regexp"
	"strings"

	"voicedesk/app/service/session"
)

var (
	canonicalPattern = regexp.MustCompile(`^(order|invoice)_([a-z0-9][a-z0-9-]*)\.pdf$`)
	// spoken forms such as "order number 42", "invoice #7" or "invoice-7.pdf"
	spokenPattern = regexp.MustCompile(`^(order|invoice)[\s_#-]*(?:(?:number|num|no\.?)[\s_#-]*)?([a-z0-9][a-z0-9-]*)(?:\.pdf)?$`)
)

// CanonicalDocument maps a document mention to "order_{number}.pdf" or "invoice_{id}.pdf".
// Mentions without an identifier containing a digit are rejected.
func CanonicalDocument(reference string) (string, bool) {
	key := session.Normalize(reference)
	if key == "" {
		return "", false
	}

	match := canonicalPattern.FindStringSubmatch(key)
	if match == nil {
		match = spokenPattern.FindStringSubmatch(key)
	}
	if match == nil {
		return "", false
	}

	kind, id := match[1], match[2]
	if !strings.ContainsAny(id, "0123456789") {
		return "", false
	}

	return kind + "_" + id + ".pdf", true
}

func canonicalOrder(order string) string {
	order = strings.TrimSpace(order)
	order = strings.TrimPrefix(order, "#")

	return strings.TrimSpace(order)
}
