package template

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewEngine_Invalid(t *testing.T) {
	tests := []struct {
		name string
		tmpl Template
	}{
		{name: "invalid subject", tmpl: Template{Subject: "Hello {% endif %}"}},
		{name: "invalid html", tmpl: Template{Subject: "Hi", HTML: "{% if x %}<p>"}},
		{name: "invalid text", tmpl: Template{Subject: "Hi", Text: "{% for %}"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(tt.tmpl); err == nil {
				t.Error("NewEngine() expected error")
			}
		})
	}
}

func TestEngine_RenderDefault(t *testing.T) {
	engine, err := NewEngine(DefaultReviewRequest)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	res, err := engine.Render(ReviewRequest{
		CustomerName: "Ann <script>",
		BusinessName: "Smith & Sons",
		SenderName:   "The Smith team",
		ReviewURL:    "https://track.example/track/click/c1?a=1&b=2",
		PixelURL:     "https://track.example/track/open/c1",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if res.Subject != "How was your visit to Smith & Sons?" {
		t.Errorf("Subject = %q", res.Subject)
	}
	if strings.Contains(res.HTML, "<script>") {
		t.Error("HTML should escape customer name")
	}
	if !strings.Contains(res.HTML, `href="https://track.example/track/click/c1?a=1&amp;b=2"`) {
		t.Errorf("HTML missing escaped click URL:\n%s", res.HTML)
	}
	if !strings.Contains(res.HTML, `src="https://track.example/track/open/c1"`) {
		t.Error("HTML missing tracking pixel")
	}
	if !strings.Contains(res.Text, "Leave a review: https://track.example/track/click/c1?a=1&b=2") {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestEngine_RenderWithoutTracking(t *testing.T) {
	engine, err := NewEngine(DefaultReviewRequest)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	res, err := engine.Render(ReviewRequest{
		CustomerName: "Ann",
		BusinessName: "Acme",
		ReviewURL:    "https://g.page/r/acme/review",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(res.HTML, "<img") {
		t.Error("HTML should not contain a pixel when tracking is disabled")
	}
	if !strings.Contains(res.HTML, "https://g.page/r/acme/review") {
		t.Error("HTML should link the raw review URL")
	}
}

func TestEngine_CustomFilter(t *testing.T) {
	engine, err := NewEngine(Template{Subject: "{{ customer_name | first_name }}, a quick favour?"})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	res, err := engine.Render(ReviewRequest{CustomerName: "Pavan Reddy"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if res.Subject != "Pavan, a quick favour?" {
		t.Errorf("Subject = %q", res.Subject)
	}
	if res.HTML != "" || res.Text != "" {
		t.Error("missing parts should render empty")
	}
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	htmlFile := filepath.Join(dir, "review.html")
	if err := os.WriteFile(htmlFile, []byte("<p>{{ customer_name }}</p>"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	tmpl, err := LoadFiles("", htmlFile, "")
	if err != nil {
		t.Fatalf("LoadFiles() error = %v", err)
	}
	if tmpl.HTML != "<p>{{ customer_name }}</p>" {
		t.Errorf("HTML = %q", tmpl.HTML)
	}
	if tmpl.Subject != DefaultReviewRequest.Subject || tmpl.Text != DefaultReviewRequest.Text {
		t.Error("unset parts should keep defaults")
	}

	if _, err := LoadFiles("", filepath.Join(dir, "missing.html"), ""); err == nil {
		t.Error("LoadFiles() expected error for missing file")
	}
}
