package transcript

import (
	"strings"
	"testing"
	"time"

	"deskbot.org/internal/platform"
)

func TestRender(t *testing.T) {
	channel := platform.Channel{ID: "c1", Name: "ticket-alice"}
	messages := []platform.Message{
		{AuthorTag: "alice#1", Content: "hi, I need help", CreatedAt: time.Now()},
		{AuthorTag: "deskbot#0", Embeds: []platform.Embed{{
			Title:  "Ticket Created",
			Fields: []platform.EmbedField{{Name: "Reason", Value: "billing"}},
		}}, CreatedAt: time.Now()},
	}

	data, name, err := Render(channel, messages)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if name != "transcript-ticket-alice.html" {
		t.Fatalf("unexpected file name: %q", name)
	}
	html := string(data)
	for _, want := range []string{"ticket-alice", "alice#1", "hi, I need help", "Ticket Created", "Reason"} {
		if !strings.Contains(html, want) {
			t.Fatalf("transcript missing %q", want)
		}
	}
}

func TestRenderEscapesContent(t *testing.T) {
	data, _, err := Render(platform.Channel{Name: "t"}, []platform.Message{
		{AuthorTag: "x", Content: `<script>alert(1)</script>`},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(string(data), "<script>alert(1)</script>") {
		t.Fatal("message content was not escaped")
	}
}
