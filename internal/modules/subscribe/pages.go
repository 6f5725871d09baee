package subscribe

import (
	"fmt"
	"html"

	"github.com/gin-gonic/gin"
)

// Human-facing copy for the link endpoints. These render for people clicking
// links in their mail client, not for API consumers.
const (
	msgConfirmed    = "You're on the list. New essays will land in your inbox."
	msgUnsubscribed = "You've been unsubscribed. No more emails from us."
	msgInvalidConfirm = "This confirmation link is invalid or has expired. " +
		"Subscribe again to receive a fresh one."
	msgInvalidUnsub = "This unsubscribe link is invalid. " +
		"Use the link from the bottom of any email we sent you."
	msgTryLater = "Something went wrong on our side. Please try again in a few minutes."
)

const pageTpl = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <meta name="robots" content="noindex" />
  <title>%s</title>
  <style>
    body { font-family: Georgia, serif; background: #faf8f5; color: #222; margin: 0; }
    main { max-width: 32rem; margin: 18vh auto 0; padding: 0 1.5rem; }
    h1 { font-size: 1.5rem; font-weight: normal; }
    p { line-height: 1.6; color: #444; }
  </style>
</head>
<body>
  <main>
    <h1>%s</h1>
    <p>%s</p>
  </main>
</body>
</html>`

func renderPage(c *gin.Context, status int, title, message string) {
	page := fmt.Sprintf(pageTpl,
		html.EscapeString(title),
		html.EscapeString(title),
		html.EscapeString(message),
	)
	c.Data(status, "text/html; charset=utf-8", []byte(page))
}
