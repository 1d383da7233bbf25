package api

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/dgallion1/pagechat/internal/session"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	Session session.Snapshot
	Indexed []string
	CanAdd  bool
	Hint    string
	Level   string
}

// hint returns the banner shown for the session state and its severity.
func hint(snap session.Snapshot) (string, string) {
	switch {
	case snap.State == session.Ready:
		return "All sites processed and indexed! Scroll down to chat.", "success"
	case snap.State == session.Indexing:
		return "Brewing up embeddings from your chosen sites...", "info"
	case len(snap.URLs) == 0:
		return "Add a URL and then finalize them to unlock the magic of chat!", "info"
	default:
		return "Your sites are waiting to be indexed. Click 'Finalize Sites' above to continue!", "warning"
	}
}

func (s *Server) handleIndexPage(w http.ResponseWriter, r *http.Request) {
	snap := s.session().Snapshot()
	msg, level := hint(snap)
	data := pageData{
		Session: snap,
		Indexed: s.index.Sources(),
		CanAdd:  len(snap.URLs) < snap.MaxURLs && (snap.State == session.Collecting || snap.State == session.ReadyToFinalize),
		Hint:    msg,
		Level:   level,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		s.log.Error("render page", "error", err)
	}
}
