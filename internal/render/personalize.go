package render

import (
	"net/url"
	"strings"
	"time"

	"github.com/soundpost/campaigner/internal/models"
)

// Personalizer substitutes {{token}} placeholders with a specific
// recipient's data. Every token has a documented fallback so substitution
// never leaves a literal {{token}} behind and never fails on missing
// metadata.
//
// Tokens: firstName, lastName, fullName, email, subscription,
// lifetimePurchase, companyName, unsubscribeUrl, currentDate.
type Personalizer struct {
	SiteURL string

	// Now supplies the clock for {{currentDate}}. Injectable so rendering
	// stays deterministic under test; nil means time.Now.
	Now func() time.Time
}

// Personalize performs token substitution on any already-rendered content
// (HTML, text, or subject line).
func (p *Personalizer) Personalize(content string, sub models.Subscriber) string {
	meta := sub.MetadataMap()

	firstName := meta["first_name"]
	if firstName == "" {
		// Fall back to the email local part so greetings never render
		// empty.
		firstName = localPart(sub.Email)
	}
	lastName := meta["last_name"]
	fullName := strings.TrimSpace(firstName + " " + lastName)

	subscription := meta["subscription"]
	if subscription == "" {
		subscription = "none"
	}
	lifetime := meta["lifetime_purchase"]
	if lifetime == "" {
		lifetime = "false"
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	return strings.NewReplacer(
		"{{firstName}}", firstName,
		"{{lastName}}", lastName,
		"{{fullName}}", fullName,
		"{{email}}", sub.Email,
		"{{subscription}}", subscription,
		"{{lifetimePurchase}}", lifetime,
		"{{companyName}}", meta["company_name"],
		"{{unsubscribeUrl}}", p.SiteURL+"/unsubscribe?email="+url.QueryEscape(sub.Email),
		"{{currentDate}}", now().Format("January 2, 2006"),
	).Replace(content)
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
