package render

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var hrefPattern = regexp.MustCompile(`href=["']([^"']+)["']`)

// rewriteLinks routes every qualifying href through the click-tracking
// redirect. Links are left alone when they are mailto: links, unsubscribe
// links, or already point at the tracking endpoint.
func rewriteLinks(html, trackingBase string, t *Tracking) string {
	return hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		sub := hrefPattern.FindStringSubmatch(match)
		target := sub[1]

		if strings.Contains(target, "/track/click") ||
			strings.Contains(target, "unsubscribe") ||
			strings.HasPrefix(target, "mailto:") {
			return match
		}

		return fmt.Sprintf(`href="%s/track/click?c=%s&u=%s&s=%s&url=%s"`,
			trackingBase, t.CampaignID, t.SubscriberID, t.SendID, url.QueryEscape(target))
	})
}

// openPixel returns the invisible 1x1 image that reports the open event
// when the mail client fetches it.
func openPixel(trackingBase string, t *Tracking) string {
	return fmt.Sprintf(
		"<img src=\"%s/track/open?c=%s&u=%s&s=%s\" width=\"1\" height=\"1\" style=\"display:block;border:0;margin:0;padding:0;\" alt=\"\" />\n",
		trackingBase, t.CampaignID, t.SubscriberID, t.SendID)
}
