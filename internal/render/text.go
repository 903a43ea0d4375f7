package render

import (
	"fmt"
	"strings"
)

// Text renders the plain-text alternative body. Every block type has a
// deterministic fallback; blocks are joined with blank lines in list
// order.
func (r *Renderer) Text(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, r.blockText(b))
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func (r *Renderer) blockText(b Block) string {
	switch b.Type {
	case BlockHeader:
		return b.Content + "\n" + strings.Repeat("=", len(b.Content)) + "\n"

	case BlockText:
		return b.Content + "\n"

	case BlockButton:
		return fmt.Sprintf("%s: %s\n", b.Content, orDefault(b.URL, "#"))

	case BlockImage:
		return fmt.Sprintf("[Image: %s]\n", b.Src)

	case BlockDivider:
		return strings.Repeat("-", 50) + "\n"

	case BlockSpacer:
		return "\n"

	case BlockFooter:
		var sb strings.Builder
		sb.WriteString("\n" + strings.Repeat("-", 50) + "\n")
		if len(b.SocialLinks) > 0 {
			links := make([]string, 0, len(b.SocialLinks))
			for _, s := range b.SocialLinks {
				links = append(links, s.Platform+": "+s.URL)
			}
			sb.WriteString(strings.Join(links, " | ") + "\n")
		}
		footerText := b.FooterText
		if footerText == "" {
			footerText = "© " + r.opts.BrandName + ". All rights reserved."
		}
		sb.WriteString(footerText + "\n")
		sb.WriteString(fmt.Sprintf("%s: %s | %s: %s | %s: %s\n",
			orDefault(b.UnsubscribeText, "Unsubscribe"),
			orDefault(b.UnsubscribeURL, r.opts.SiteURL+"/unsubscribe?email={{email}}"),
			orDefault(b.PrivacyText, "Privacy Policy"),
			orDefault(b.PrivacyURL, r.opts.SiteURL+"/privacy-policy"),
			orDefault(b.TermsText, "Terms of Service"),
			orDefault(b.TermsURL, r.opts.SiteURL+"/terms-of-service")))
		return sb.String()

	case BlockBrandHeader:
		return fmt.Sprintf("[%s]\n%s\n", r.opts.BrandName, strings.Repeat("=", 10))

	default:
		return b.Content + "\n"
	}
}
