package render

import (
	"fmt"
	"html"
	"strings"
)

// Renderer produces HTML and text bodies from content blocks. Rendering is
// a pure function of blocks + options + tracking: the same input always
// yields byte-identical output.
type Renderer struct {
	opts Options
}

func NewRenderer(opts Options) *Renderer {
	if opts.TrackingBaseURL == "" {
		opts.TrackingBaseURL = opts.SiteURL
	}
	return &Renderer{opts: opts}
}

// HTML renders the full email HTML document. When tracking is non-nil,
// every qualifying link is rewritten through the click-tracking redirect
// and an open-tracking pixel is appended.
func (r *Renderer) HTML(blocks []Block, subject, preheader string, tracking *Tracking) string {
	var body strings.Builder
	for _, b := range blocks {
		body.WriteString(r.blockHTML(b))
	}

	if preheader == "" {
		preheader = r.opts.BrandName
	}

	campaignRef := "preview"
	if tracking != nil {
		campaignRef = tracking.CampaignID
	}

	var doc strings.Builder
	doc.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>` + html.EscapeString(subject) + `</title>
<style>
.full-width { width: 100%; margin: 0; border-radius: 0; }
.constrained-width { max-width: 600px; margin-left: auto; margin-right: auto; padding: 0 20px; box-sizing: border-box; }
</style>
</head>
<body style="margin: 0; padding: 20px; background-color: #f7f7f7; font-family: Arial, sans-serif;">
<div style="background-color: #ffffff; max-width: 600px; margin: 0 auto; box-shadow: 0 4px 12px rgba(0, 0, 0, 0.1);">
<div style="padding: 15px 20px; background-color: #f8f9fa; border-bottom: 1px solid #e9ecef; font-size: 12px; color: #666;">
<span style="color: #333; font-weight: 500;">` + html.EscapeString(preheader) + `</span>
<span style="float: right;"><a href="` + r.opts.SiteURL + `/email-preview?c=` + campaignRef + `" style="color: #6c63ff; text-decoration: underline;">View in browser</a></span>
</div>
`)
	doc.WriteString(body.String())
	doc.WriteString("</div>\n")

	if tracking != nil {
		doc.WriteString(openPixel(r.opts.TrackingBaseURL, tracking))
	}

	doc.WriteString("</body>\n</html>")

	out := doc.String()
	if tracking != nil {
		out = rewriteLinks(out, r.opts.TrackingBaseURL, tracking)
	}
	return out
}

func (r *Renderer) blockHTML(b Block) string {
	wrapper := "constrained-width"
	if b.FullWidth {
		wrapper = "full-width"
	}

	switch b.Type {
	case BlockHeader:
		return fmt.Sprintf(
			`<div class="%s" style="padding: 16px 32px;"><h1 style="font-size: %s; color: %s; text-align: %s; font-weight: 800; margin: 0 0 1rem 0;">%s</h1></div>`,
			wrapper, orDefault(b.FontSize, "2.5rem"), orDefault(b.TextColor, "#333"),
			orDefault(b.TextAlign, "center"), b.Content)

	case BlockText:
		return fmt.Sprintf(
			`<div class="%s" style="padding: 16px 32px;"><p style="font-size: %s; color: %s; line-height: 1.6; text-align: %s; margin: 0 0 1rem 0;">%s</p></div>`,
			wrapper, orDefault(b.FontSize, "1rem"), orDefault(b.TextColor, "#555"),
			orDefault(b.TextAlign, "left"), b.Content)

	case BlockButton:
		radius := "50px"
		display := "inline-block"
		if b.FullWidth {
			radius = "0"
			display = "block"
		}
		return fmt.Sprintf(
			`<div class="%s" style="text-align: %s; margin: 2rem 0; padding: 16px 0;"><a href="%s" style="display: %s; padding: 1.25rem 2.5rem; background: %s; color: %s; text-decoration: none; border-radius: %s; font-weight: 700; font-size: %s; text-transform: uppercase; letter-spacing: 1px;">%s</a></div>`,
			wrapper, orDefault(b.TextAlign, "center"), orDefault(b.URL, "#"), display,
			orDefault(b.BackgroundColor, "linear-gradient(135deg, #6c63ff 0%, #4ecdc4 100%)"),
			orDefault(b.TextColor, "white"), radius, orDefault(b.FontSize, "1rem"), b.Content)

	case BlockImage:
		radius := "8px"
		if b.FullWidth {
			radius = "0"
		}
		return fmt.Sprintf(
			`<div class="%s" style="text-align: %s; margin: 1.5rem 0; padding: 16px 0;"><img src="%s" alt="Campaign Image" style="max-width: 100%%; height: auto; border-radius: %s;" /></div>`,
			wrapper, orDefault(b.TextAlign, "center"), b.Src, radius)

	case BlockDivider:
		return fmt.Sprintf(
			`<div class="%s" style="padding: 16px 32px;"><hr style="border: none; height: 2px; background: linear-gradient(90deg, #6c63ff, #4ecdc4); margin: 2rem 0;" /></div>`,
			wrapper)

	case BlockSpacer:
		return fmt.Sprintf(`<div class="%s" style="height: %s;"></div>`, wrapper, orDefault(b.Height, "20px"))

	case BlockFooter:
		return r.footerHTML(b)

	case BlockBrandHeader:
		return fmt.Sprintf(
			`<div class="constrained-width" style="background: %s; padding: 0; text-align: center; min-height: 60px; margin: 0;"><table width="100%%" cellpadding="0" cellspacing="0" border="0" style="border-collapse: collapse;"><tr><td align="center" style="padding: 0;"><img src="%s" alt="%s" style="max-width: 300px; width: 100%%; height: auto; display: block; margin: 0 auto; border: 0;" /></td></tr></table></div>`,
			orDefault(b.BackgroundColor, "linear-gradient(135deg, #1a1a1a 0%, #121212 100%)"),
			r.opts.LogoURL, html.EscapeString(r.opts.BrandName))

	default:
		// Unknown block kinds degrade to a neutral fragment rather than
		// aborting the whole campaign.
		return fmt.Sprintf(
			`<div class="%s" style="color: #555; margin: 1rem 0; padding: 16px 32px;">%s</div>`,
			wrapper, b.Content)
	}
}

func (r *Renderer) footerHTML(b Block) string {
	var social strings.Builder
	if len(b.SocialLinks) > 0 {
		social.WriteString(`<div style="margin-bottom: 16px; text-align: center;">`)
		for i, s := range b.SocialLinks {
			if i > 0 {
				social.WriteString(" &nbsp; ")
			}
			social.WriteString(fmt.Sprintf(`<a href="%s" style="color: %s; text-decoration: none;">%s</a>`,
				s.URL, orDefault(b.TextColor, "#ffffff"), html.EscapeString(s.Platform)))
		}
		social.WriteString(`</div>`)
	}

	textColor := orDefault(b.TextColor, "#ffffff")
	footerText := b.FooterText
	if footerText == "" {
		footerText = "© " + r.opts.BrandName + ". All rights reserved."
	}

	return fmt.Sprintf(
		`<div style="font-size: %s; color: %s; background: %s; line-height: 1.4; padding: 24px;">%s<div style="text-align: center; padding-bottom: 8px;">%s</div><div style="text-align: center;"><a href="%s" style="color: %s; text-decoration: none;">%s</a> &nbsp;|&nbsp; <a href="%s" style="color: %s; text-decoration: none;">%s</a> &nbsp;|&nbsp; <a href="%s" style="color: %s; text-decoration: none;">%s</a></div></div>`,
		orDefault(b.FontSize, "0.8rem"), textColor, orDefault(b.BackgroundColor, "#363636"),
		social.String(), footerText,
		orDefault(b.UnsubscribeURL, r.opts.SiteURL+"/unsubscribe?email={{email}}"), textColor,
		orDefault(b.UnsubscribeText, "Unsubscribe"),
		orDefault(b.PrivacyURL, r.opts.SiteURL+"/privacy-policy"), textColor,
		orDefault(b.PrivacyText, "Privacy Policy"),
		orDefault(b.TermsURL, r.opts.SiteURL+"/terms-of-service"), textColor,
		orDefault(b.TermsText, "Terms of Service"))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
