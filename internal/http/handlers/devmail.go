package handlers

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tastykitchen/server/internal/mailer"
)

var previewTemplate = template.Must(template.New("preview").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body>
<p><strong>To:</strong> {{.To}}<br><strong>Subject:</strong> {{.Subject}}</p>
<hr>
{{if .HTML}}{{.HTML}}{{else}}<pre>{{.Text}}</pre>{{end}}
</body>
</html>
`))

type previewData struct {
	To      string
	Subject string
	Text    string
	HTML    template.HTML
}

// DevMailHandler renders messages captured by the dev mailer
type DevMailHandler struct {
	outbox *mailer.DevMailer
}

func NewDevMailHandler(outbox *mailer.DevMailer) *DevMailHandler {
	return &DevMailHandler{outbox: outbox}
}

// HandlePreview handles GET /api/dev/mail/{id}
func (h *DevMailHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.outbox.Get(chi.URLParam(r, "id"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "Message not found")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = previewTemplate.Execute(w, previewData{
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
		// rendered mail bodies are produced by this service, never by users
		HTML: template.HTML(msg.HTML),
	})
}
