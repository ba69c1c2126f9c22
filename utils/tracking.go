package utils

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"databender/config"
)

// TrackingData is the payload encoded into open and click tracking tokens.
type TrackingData struct {
	LeadID         uint   `json:"leadId"`
	EmailDay       int    `json:"emailDay"`
	SequenceType   string `json:"sequenceType"`
	EmailID        string `json:"emailId,omitempty"`
	DestinationURL string `json:"destinationUrl,omitempty"`
}

// TransparentGIF is the smallest valid GIF image (43 bytes), served as the
// open-tracking pixel.
var TransparentGIF, _ = base64.StdEncoding.DecodeString(
	"R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7",
)

// EncodeTrackingID encodes tracking data into a URL-safe base64 token.
func EncodeTrackingID(data TrackingData) string {
	payload, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(payload)
}

// DecodeTrackingID decodes a token back into its tracking data. Returns nil
// for anything malformed: bad base64, bad JSON, or missing required fields.
// Tokens arrive from the open internet, so garbage is expected.
func DecodeTrackingID(token string) *TrackingData {
	payload, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		// Tolerate padded tokens produced by other encoders
		payload, err = base64.URLEncoding.DecodeString(token)
		if err != nil {
			return nil
		}
	}

	var data TrackingData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil
	}

	if data.LeadID == 0 || data.SequenceType == "" {
		return nil
	}

	return &data
}

func trackingBaseURL() string {
	if config.AppConfig.SiteURL != "" {
		return config.AppConfig.SiteURL
	}
	return "https://databender.co"
}

// AddTrackingPixel inserts an open-tracking pixel into an HTML email body,
// just before the closing </body> tag when present.
func AddTrackingPixel(htmlBody, trackingID string) string {
	pixelURL := fmt.Sprintf("%s/track/open/%s", trackingBaseURL(), trackingID)
	pixelTag := fmt.Sprintf(
		`<img src="%s" width="1" height="1" alt="" style="display:block;width:1px;height:1px;border:0;" />`,
		pixelURL,
	)

	if idx := strings.LastIndex(htmlBody, "</body>"); idx != -1 {
		return htmlBody[:idx] + pixelTag + htmlBody[idx:]
	}
	return htmlBody + pixelTag
}

var hrefRegex = regexp.MustCompile(`(?i)href=["']([^"']+)["']`)

// WrapLinksWithTracking rewrites every href in the HTML to go through the
// click tracking redirect. Unsubscribe, mailto:, tel:, anchor, and
// already-tracked links are left alone.
func WrapLinksWithTracking(html string, leadID uint, emailDay int, sequenceType, emailID string) string {
	baseURL := trackingBaseURL()

	return hrefRegex.ReplaceAllStringFunc(html, func(match string) string {
		sub := hrefRegex.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		url := sub[1]
		lower := strings.ToLower(url)

		// Unsubscribe links must always work directly
		if strings.Contains(lower, "unsubscribe") {
			return match
		}
		if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
			return match
		}
		if strings.HasPrefix(url, "#") {
			return match
		}
		if strings.Contains(url, "/track/click/") {
			return match
		}

		trackingID := EncodeTrackingID(TrackingData{
			LeadID:         leadID,
			EmailDay:       emailDay,
			SequenceType:   sequenceType,
			EmailID:        emailID,
			DestinationURL: url,
		})
		trackedURL := fmt.Sprintf("%s/track/click/%s", baseURL, trackingID)

		quote := `"`
		if !strings.Contains(match, `"`) {
			quote = "'"
		}
		return fmt.Sprintf("href=%s%s%s", quote, trackedURL, quote)
	})
}

// ApplyEmailTracking wraps links with click tracking and then inserts the
// open pixel.
func ApplyEmailTracking(htmlBody string, leadID uint, emailDay int, sequenceType, emailID string) string {
	openToken := EncodeTrackingID(TrackingData{
		LeadID:       leadID,
		EmailDay:     emailDay,
		SequenceType: sequenceType,
		EmailID:      emailID,
	})

	tracked := WrapLinksWithTracking(htmlBody, leadID, emailDay, sequenceType, emailID)
	return AddTrackingPixel(tracked, openToken)
}
