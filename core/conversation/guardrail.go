package conversation

import "strings"

// QueryKind is the guardrail class of a query.
type QueryKind int

const (
	KindGeneral QueryKind = iota
	KindRecruiter
	KindPrivate
)

func (k QueryKind) String() string {
	switch k {
	case KindPrivate:
		return "private"
	case KindRecruiter:
		return "recruiter"
	default:
		return "general"
	}
}

// PrivateKeywords mark questions about private information.
// Matching is by substring, so short terms like "id" also match inside words.
var PrivateKeywords = []string{
	"exact address", "street address", "home address", "birth", "date", "age", "salary",
	"income", "money", "bank", "account", "ssn", "social security", "id",
	"passport", "driver license", "personal", "private", "home", "family",
}

// RecruiterKeywords mark questions about job suitability.
var RecruiterKeywords = []string{
	"good fit", "suitable", "candidate", "hire", "recruit", "position",
	"role", "job", "employment", "work", "team", "company", "organization",
	"skills", "experience", "qualifications", "background", "resume", "cv",
}

// Classify returns KindPrivate if the lowercased query contains a private
// keyword, else KindRecruiter if it contains a recruiter keyword.
func Classify(query string) QueryKind {
	q := strings.ToLower(query)
	if containsAny(q, PrivateKeywords) {
		return KindPrivate
	}
	if containsAny(q, RecruiterKeywords) {
		return KindRecruiter
	}
	return KindGeneral
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
