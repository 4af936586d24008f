package template

import (
	"fmt"
	"os"
)

// Template is the source of a review request email
type Template struct {
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// RenderResult contains rendered template output
type RenderResult struct {
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// ReviewRequest holds the values available to a template
type ReviewRequest struct {
	CustomerName string
	BusinessName string
	LocationName string
	SenderName   string
	// ReviewURL is the click-tracking URL, or the raw review link when
	// tracking is disabled.
	ReviewURL string
	// PixelURL is empty when tracking is disabled
	PixelURL string
}

func (r ReviewRequest) bindings() map[string]any {
	return map[string]any{
		"customer_name": r.CustomerName,
		"business_name": r.BusinessName,
		"location_name": r.LocationName,
		"sender_name":   r.SenderName,
		"review_url":    r.ReviewURL,
		"pixel_url":     r.PixelURL,
	}
}

// DefaultReviewRequest is used when no template files are configured
var DefaultReviewRequest = Template{
	Subject: `How was your visit to {{ business_name }}?`,
	HTML: `<!DOCTYPE html>
<html>
<body style="margin:0;padding:24px;font-family:Arial,Helvetica,sans-serif;color:#202124;background:#ffffff">
<p>Hi {{ customer_name | escape }},</p>
<p>Thank you for choosing {{ business_name | escape }}{% if location_name != "" %} ({{ location_name | escape }}){% endif %}.
We would love to hear about your experience. It only takes a minute and helps others find us.</p>
<p style="margin:32px 0">
<a href="{{ review_url | escape }}" style="background:#1a73e8;color:#ffffff;padding:12px 24px;border-radius:4px;text-decoration:none;font-weight:bold">Leave a review</a>
</p>
<p>Thank you,<br>{{ sender_name | escape }}</p>
{% if pixel_url != "" %}<img src="{{ pixel_url | escape }}" width="1" height="1" alt="" style="display:block;border:0">{% endif %}
</body>
</html>
`,
	Text: `Hi {{ customer_name }},

Thank you for choosing {{ business_name }}. We would love to hear about your experience.

Leave a review: {{ review_url }}

Thank you,
{{ sender_name }}
`,
}

// LoadFiles builds a template from files, keeping the default for any part
// whose path is empty.
func LoadFiles(subject, htmlFile, textFile string) (Template, error) {
	tmpl := DefaultReviewRequest
	if subject != "" {
		tmpl.Subject = subject
	}
	if htmlFile != "" {
		data, err := os.ReadFile(htmlFile)
		if err != nil {
			return tmpl, fmt.Errorf("failed to read html template: %w", err)
		}
		tmpl.HTML = string(data)
	}
	if textFile != "" {
		data, err := os.ReadFile(textFile)
		if err != nil {
			return tmpl, fmt.Errorf("failed to read text template: %w", err)
		}
		tmpl.Text = string(data)
	}
	return tmpl, nil
}
