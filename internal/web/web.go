// Package web renders the server-side pages from embedded templates.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

// Pages lists every page template besides the layout.
var Pages = []string{
	"home", "login", "register", "report_problem", "reports", "report", "terms", "error", "loading",
}

var notices = map[string]string{
	"acesso-negado":      "Acesso negado. Esta área é restrita a administradores.",
	"email-confirmado":   "Email confirmado! Agora você pode entrar.",
	"cadastro":           "Verifique seu email para confirmar sua conta.",
	"conta-criada":       "Conta criada com sucesso. Você já pode entrar.",
	"denuncia-enviada":   "Denúncia enviada com sucesso!",
	"imagem-nao-enviada": "Não foi possível enviar a imagem. A denúncia foi registrada sem foto.",
	"sessao-encerrada":   "Você saiu da sua conta.",
	"status-atualizado":  "Status atualizado.",
}

var warningNotices = map[string]bool{
	"acesso-negado":      true,
	"imagem-nao-enviada": true,
}

// NoticeCodes splits a notice parameter carrying several comma-separated
// codes, in order and without repeats.
func NoticeCodes(notice string) []string {
	var codes []string
	seen := map[string]bool{}
	for _, code := range strings.Split(notice, ",") {
		code = strings.TrimSpace(code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes
}

// NoticeText returns the message for a notice code, or "" for unknown codes.
func NoticeText(code string) string {
	return notices[code]
}

// Viewer is the signed-in user as shown in the navigation.
type Viewer struct {
	Name    string
	IsAdmin bool
}

type Page struct {
	Title   string
	Viewer  *Viewer
	Notice  string
	Error   string
	Fields  map[string]string
	Refresh bool
	Data    any
}

type Renderer struct {
	pages map[string]*template.Template
}

func New() (*Renderer, error) {
	funcs := template.FuncMap{
		"noticeText":  NoticeText,
		"noticeCodes": NoticeCodes,
		"isWarning":   func(code string) bool { return warningNotices[code] },
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(Pages))}
	for _, name := range Pages {
		tpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[name] = tpl
	}
	return r, nil
}

// MustNew panics if the embedded templates do not parse.
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Render writes the page wrapped in the layout. Nothing is written when
// execution fails.
func (r *Renderer) Render(w io.Writer, name string, p Page) error {
	tpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout", p); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	_, err := io.Copy(w, &buf)
	return err
}

// RenderString is Render into a string.
func (r *Renderer) RenderString(name string, p Page) (string, error) {
	var sb strings.Builder
	if err := r.Render(&sb, name, p); err != nil {
		return "", err
	}
	return sb.String(), nil
}
