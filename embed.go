package roomchat

import "embed"

// TemplateFS contains the embedded HTML templates used by the server: the read-only home page and the
// exported transcript document.
//
//go:embed templates/*
var TemplateFS embed.FS
