package delivery

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sungwon/newsletter/internal/storage"
)

const defaultGreetingName = "there"

var newsletterLayout = template.Must(template.New("newsletter").Parse(`<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; background-color: #fafafa; margin: 0; padding: 0; color: #333; }
        .container { max-width: 650px; margin: 20px auto; background: #ffffff; border-radius: 10px; box-shadow: 0 2px 6px rgba(0,0,0,0.1); overflow: hidden; }
        .header { background-color: #0078D4; padding: 18px; color: #ffffff; text-align: center; }
        .content { padding: 25px; line-height: 1.6; }
        .footer { background-color: #f0f0f0; padding: 10px; font-size: 12px; text-align: center; color: #777; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h2>{{.Subject}}</h2>
        </div>
        <div class="content">
            <p>Hi {{.Name}},</p>
            <p>{{.Body}}</p>
        </div>
        <div class="footer">
            <p>You are receiving this newsletter because you subscribed to {{.Brand}}.</p>
            <p>&copy; {{.Year}} {{.Brand}}. All rights reserved.</p>
        </div>
    </div>
</body>
</html>
`))

// Rendered is a newsletter ready to hand to a provider.
type Rendered struct {
	Subject  string
	TextBody string
	HTMLBody string
}

// Renderer turns a content item into the per-subscriber newsletter. The
// content body may carry markup; it is sanitised before it is embedded.
type Renderer struct {
	brand  string
	ugc    *bluemonday.Policy
	strict *bluemonday.Policy
	now    func() time.Time
}

// NewRenderer creates a Renderer. brand is shown in the footer.
func NewRenderer(brand string) *Renderer {
	if brand == "" {
		brand = "Newsletter Service"
	}
	return &Renderer{
		brand:  brand,
		ugc:    bluemonday.UGCPolicy(),
		strict: bluemonday.StrictPolicy(),
		now:    time.Now,
	}
}

// Render builds the HTML and plain text bodies for one subscriber.
func (r *Renderer) Render(content storage.Content, sub storage.Subscriber) (*Rendered, error) {
	name := defaultGreetingName
	if sub.Name.Valid && strings.TrimSpace(sub.Name.String) != "" {
		name = strings.TrimSpace(sub.Name.String)
	}

	safeBody := r.ugc.Sanitize(content.Body)
	safeBody = strings.ReplaceAll(safeBody, "\n", "<br>\n")

	var buf bytes.Buffer
	err := newsletterLayout.Execute(&buf, struct {
		Subject string
		Name    string
		Body    template.HTML
		Brand   string
		Year    int
	}{
		Subject: content.Subject,
		Name:    name,
		Body:    template.HTML(safeBody), //nolint:gosec // sanitised by bluemonday above
		Brand:   r.brand,
		Year:    r.now().UTC().Year(),
	})
	if err != nil {
		return nil, fmt.Errorf("render newsletter: %w", err)
	}

	plainBody := html.UnescapeString(r.strict.Sanitize(content.Body))
	text := fmt.Sprintf("Hi %s,\n\n%s\n\n--\nYou are receiving this newsletter because you subscribed to %s.\n",
		name, plainBody, r.brand)

	return &Rendered{
		Subject:  content.Subject,
		TextBody: text,
		HTMLBody: buf.String(),
	}, nil
}
