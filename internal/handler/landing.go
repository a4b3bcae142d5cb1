package handler

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"

	"model-proxy-go/internal/config"
)

//go:embed templates/landing.html
var landingTemplate string

var landingTmpl = template.Must(template.New("landing").Parse(landingTemplate))

// renderLanding renders the static landing page for a profile once at startup.
func renderLanding(p config.Profile) ([]byte, error) {
	var buf bytes.Buffer
	err := landingTmpl.Execute(&buf, struct {
		config.Landing
		MountPrefix string
	}{p.Landing, p.MountPrefix})
	if err != nil {
		return nil, fmt.Errorf("render landing page: %w", err)
	}
	return buf.Bytes(), nil
}
