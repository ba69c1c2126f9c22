package utils

import (
	"fmt"
	"strings"
	"testing"
)

func TestTrackingIDRoundTrip(t *testing.T) {
	for i := 1; i <= 1000; i++ {
		data := TrackingData{
			LeadID:       uint(i),
			EmailDay:     i % 22,
			SequenceType: "assessment",
		}
		if i%3 == 0 {
			data.EmailID = fmt.Sprintf("assessment-day%d", i%22)
		}
		if i%5 == 0 {
			data.DestinationURL = fmt.Sprintf("https://databender.co/guides/%d", i)
		}

		token := EncodeTrackingID(data)
		if token == "" {
			t.Fatalf("encode returned empty token for lead %d", i)
		}
		if strings.ContainsAny(token, "+/=") {
			t.Fatalf("token %q is not URL safe", token)
		}

		decoded := DecodeTrackingID(token)
		if decoded == nil {
			t.Fatalf("decode returned nil for lead %d", i)
		}
		if *decoded != data {
			t.Fatalf("round trip mismatch: got %+v want %+v", *decoded, data)
		}
	}
}

func TestDecodeTrackingIDGarbage(t *testing.T) {
	cases := []string{
		"",
		"not base64!!!",
		"aGVsbG8",          // valid base64, not JSON
		"e30",              // "{}" missing required fields
		"eyJsZWFkSWQiOjB9", // leadId zero
		strings.Repeat("A", 4096),
	}
	for _, token := range cases {
		if got := DecodeTrackingID(token); got != nil {
			t.Errorf("DecodeTrackingID(%q) = %+v, want nil", token, got)
		}
	}

	// Missing sequenceType is rejected even with a valid lead ID
	token := EncodeTrackingID(TrackingData{LeadID: 7})
	if got := DecodeTrackingID(token); got != nil {
		t.Errorf("decode accepted token without sequence type: %+v", got)
	}
}

func TestDecodeTrackingIDPadded(t *testing.T) {
	raw := EncodeTrackingID(TrackingData{LeadID: 12, EmailDay: 2, SequenceType: "guide-general"})
	padded := raw
	for len(padded)%4 != 0 {
		padded += "="
	}
	decoded := DecodeTrackingID(padded)
	if decoded == nil || decoded.LeadID != 12 {
		t.Fatalf("padded token not decoded: %+v", decoded)
	}
}

func TestTransparentGIF(t *testing.T) {
	if len(TransparentGIF) != 43 {
		t.Fatalf("pixel is %d bytes, want 43", len(TransparentGIF))
	}
	if !strings.HasPrefix(string(TransparentGIF), "GIF89a") {
		t.Fatalf("pixel does not start with GIF89a header")
	}
}

func TestAddTrackingPixel(t *testing.T) {
	body := "<html><body><p>Hello</p></body></html>"
	out := AddTrackingPixel(body, "tok123")

	pixelIdx := strings.Index(out, "/track/open/tok123")
	bodyIdx := strings.Index(out, "</body>")
	if pixelIdx == -1 {
		t.Fatal("pixel URL missing from output")
	}
	if bodyIdx == -1 || pixelIdx > bodyIdx {
		t.Fatalf("pixel not placed before </body>: %s", out)
	}

	// No body tag appends at the end
	out = AddTrackingPixel("<p>Hi</p>", "tok456")
	if !strings.Contains(out, "/track/open/tok456") {
		t.Fatal("pixel missing when no </body> present")
	}
	if !strings.HasPrefix(out, "<p>Hi</p>") {
		t.Fatalf("original content not preserved: %s", out)
	}
}

func TestWrapLinksWithTracking(t *testing.T) {
	html := `<a href="https://databender.co/case-studies">Case studies</a>` +
		`<a href="https://databender.co/unsubscribe/abc">Unsubscribe</a>` +
		`<a href="mailto:hello@databender.co">Email us</a>` +
		`<a href="tel:+15551234567">Call</a>` +
		`<a href="#section">Jump</a>` +
		`<a href="https://databender.co/track/click/xyz">Already tracked</a>`

	out := WrapLinksWithTracking(html, 42, 2, "assessment", "assessment-day2")

	if !strings.Contains(out, "/track/click/") {
		t.Fatal("no link was wrapped")
	}
	if !strings.Contains(out, `href="https://databender.co/unsubscribe/abc"`) {
		t.Error("unsubscribe link was rewritten")
	}
	if !strings.Contains(out, `href="mailto:hello@databender.co"`) {
		t.Error("mailto link was rewritten")
	}
	if !strings.Contains(out, `href="tel:+15551234567"`) {
		t.Error("tel link was rewritten")
	}
	if !strings.Contains(out, `href="#section"`) {
		t.Error("anchor link was rewritten")
	}
	if !strings.Contains(out, `href="https://databender.co/track/click/xyz"`) {
		t.Error("already-tracked link was rewritten again")
	}

	// The wrapped link decodes back to the original destination
	start := strings.Index(out, "/track/click/") + len("/track/click/")
	end := strings.IndexAny(out[start:], `"'`)
	token := out[start : start+end]
	decoded := DecodeTrackingID(token)
	if decoded == nil {
		t.Fatal("wrapped link token did not decode")
	}
	if decoded.DestinationURL != "https://databender.co/case-studies" {
		t.Errorf("destination = %q", decoded.DestinationURL)
	}
	if decoded.LeadID != 42 || decoded.EmailDay != 2 || decoded.SequenceType != "assessment" {
		t.Errorf("token fields mismatch: %+v", decoded)
	}
}

func TestApplyEmailTracking(t *testing.T) {
	body := `<html><body><a href="https://databender.co/book">Book a call</a></body></html>`
	out := ApplyEmailTracking(body, 9, 0, "guide-general", "guide-general-day0")

	if !strings.Contains(out, "/track/click/") {
		t.Error("links not wrapped")
	}
	if !strings.Contains(out, "/track/open/") {
		t.Error("open pixel not added")
	}
}
