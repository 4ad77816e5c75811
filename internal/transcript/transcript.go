// Package transcript renders a closed ticket's message history into a
// standalone HTML document for the audit channel.
package transcript

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"deskbot.org/internal/platform"
)

var page = template.Must(template.New("transcript").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>Transcript: {{.Channel.Name}}</title>
<style>
body { font-family: sans-serif; background: #2b2d31; color: #dbdee1; margin: 2em; }
.msg { margin-bottom: 1em; }
.author { font-weight: bold; color: #f2f3f5; }
.ts { color: #949ba4; font-size: 0.8em; margin-left: 0.5em; }
.embed { border-left: 4px solid #5865f2; padding: 0.5em; margin-top: 0.25em; background: #313338; }
.embed-title { font-weight: bold; }
.field-name { font-weight: bold; font-size: 0.9em; }
</style>
</head>
<body>
<h1>#{{.Channel.Name}}</h1>
<p>{{len .Messages}} messages</p>
{{range .Messages}}
<div class="msg">
  <span class="author">{{.AuthorTag}}</span><span class="ts">{{.CreatedAt.Format "2006-01-02 15:04:05 MST"}}</span>
  {{if .Content}}<div>{{.Content}}</div>{{end}}
  {{range .Embeds}}
  <div class="embed">
    {{if .Title}}<div class="embed-title">{{.Title}}</div>{{end}}
    {{if .Description}}<div>{{.Description}}</div>{{end}}
    {{range .Fields}}<div><span class="field-name">{{.Name}}:</span> {{.Value}}</div>{{end}}
    {{if .Footer}}<div class="ts">{{.Footer}}</div>{{end}}
  </div>
  {{end}}
</div>
{{end}}
<p class="ts">Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>
</body>
</html>
`))

// Render produces the HTML transcript and its file name.
func Render(channel platform.Channel, messages []platform.Message) ([]byte, string, error) {
	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Channel     platform.Channel
		Messages    []platform.Message
		GeneratedAt time.Time
	}{channel, messages, time.Now().UTC()})
	if err != nil {
		return nil, "", fmt.Errorf("render transcript: %w", err)
	}
	return buf.Bytes(), fmt.Sprintf("transcript-%s.html", channel.Name), nil
}
