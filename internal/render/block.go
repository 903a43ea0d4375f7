// Package render turns a campaign's ordered content blocks into HTML and
// plain-text email bodies, with optional per-recipient tracking injection
// and personalization token substitution.
package render

// Block type constants. Unknown types render a neutral fragment instead of
// failing the campaign.
const (
	BlockHeader      = "header"
	BlockText        = "text"
	BlockButton      = "button"
	BlockImage       = "image"
	BlockDivider     = "divider"
	BlockSpacer      = "spacer"
	BlockFooter      = "footer"
	BlockBrandHeader = "brand-header"
)

// SocialLink is one footer social icon link.
type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// Block is one typed content block in a campaign body. The struct is flat:
// each type reads the fields it cares about and ignores the rest, which
// matches the wire format the campaign editor produces. JSON field names
// are therefore camelCase.
type Block struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"` // button target
	Src     string `json:"src,omitempty"` // image source
	Height  string `json:"height,omitempty"`

	// FullWidth blocks bleed to the container edges; constrained blocks
	// are inset to the 600px column.
	FullWidth bool `json:"fullWidth,omitempty"`

	// Style overrides; every field has a per-type default.
	TextAlign       string `json:"textAlign,omitempty"`
	TextColor       string `json:"textColor,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	FontSize        string `json:"fontSize,omitempty"`

	// Footer fields.
	FooterText      string       `json:"footerText,omitempty"`
	SocialLinks     []SocialLink `json:"socialLinks,omitempty"`
	UnsubscribeURL  string       `json:"unsubscribeUrl,omitempty"`
	UnsubscribeText string       `json:"unsubscribeText,omitempty"`
	PrivacyURL      string       `json:"privacyUrl,omitempty"`
	PrivacyText     string       `json:"privacyText,omitempty"`
	TermsURL        string       `json:"termsUrl,omitempty"`
	TermsText       string       `json:"termsText,omitempty"`
}

// Tracking identifies one recipient's send for open/click attribution.
// When nil, rendering produces an untracked draft preview.
type Tracking struct {
	CampaignID   string
	SubscriberID string
	SendID       string
}

// Options is the environment-independent rendering configuration.
type Options struct {
	// SiteURL is the public site base for view-in-browser and unsubscribe
	// links.
	SiteURL string
	// TrackingBaseURL is the base for open/click tracking endpoints. It is
	// always the production base: tracking URLs are fetched by external
	// mail clients and a development host would never resolve for them.
	TrackingBaseURL string
	// BrandName and LogoURL feed the brand-header block and footer
	// defaults.
	BrandName string
	LogoURL   string
}
