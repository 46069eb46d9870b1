package mail

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/model"
)

// Content describes one delivery email. ViewURL and BulkURL are empty when no
// selection record could be persisted; the link block is then omitted so the
// mail never advertises a dead link.
type Content struct {
	Recipient  string
	SourceName string
	Pages      []int
	Assets     []model.PageAsset
	ViewURL    string
	BulkURL    string
	ExpiresAt  time.Time
}

// Subject builds the message subject line.
func (c *Content) Subject() string {
	name := c.SourceName
	if name == "" {
		name = "your document"
	}
	return fmt.Sprintf("Your selected pages from %s", name)
}

// TextBody renders the plain-text alternative.
func (c *Content) TextBody() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\n\n")
	fmt.Fprintf(&b, "The pages you selected (%s) are attached to this email.\n", pageList(c.Pages))
	if c.SourceName != "" {
		fmt.Fprintf(&b, "Source document: %s\n", c.SourceName)
	}
	if c.ViewURL != "" {
		fmt.Fprintf(&b, "\nView your pages online:\n%s\n", c.ViewURL)
		fmt.Fprintf(&b, "\nDownload all pages at once:\n%s\n", c.BulkURL)
		fmt.Fprintf(&b, "\nThis link expires on %s.\n", c.ExpiresAt.Format("January 2, 2006"))
	}
	fmt.Fprintf(&b, "\nSent to %s.\n", c.Recipient)
	return b.String()
}

// HTMLBody renders the HTML alternative with inline images referenced by
// content-id.
func (c *Content) HTMLBody() string {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString("<p>Hello,</p>")
	fmt.Fprintf(&b, "<p>The pages you selected (%s) are attached to this email.</p>", html.EscapeString(pageList(c.Pages)))
	if c.SourceName != "" {
		fmt.Fprintf(&b, "<p>Source document: <strong>%s</strong></p>", html.EscapeString(c.SourceName))
	}
	if c.ViewURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s">View your pages online</a> &middot; <a href="%s">Download all</a></p>`,
			html.EscapeString(c.ViewURL), html.EscapeString(c.BulkURL))
		fmt.Fprintf(&b, "<p>This link expires on %s.</p>", c.ExpiresAt.Format("January 2, 2006"))
	}
	for _, asset := range c.Assets {
		fmt.Fprintf(&b, `<div><img src="cid:%s" alt="Page %d" style="max-width:100%%"/></div>`,
			html.EscapeString(asset.Name), asset.Page)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func pageList(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, ", ")
}
