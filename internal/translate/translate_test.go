package translate

import (
	"strings"
	"testing"

	"github.com/MrWong99/lorelens/internal/dialogue"
	"github.com/MrWong99/lorelens/internal/session"
)

func TestPrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     Request
		want    []string
		notWant []string
	}{
		{
			name: "character with profile",
			req: Request{
				Content:        "興味ないね",
				Speaker:        "Cloud",
				Type:           dialogue.TypeCharacter,
				TargetLanguage: "German",
				StyleHints:     session.StyleHints{Speaker: "Cloud", Style: "terse", Gender: "male"},
			},
			want: []string{"into German", "spoken by Cloud", "speaking style: terse", "gender: male"},
		},
		{
			name: "mystery speaker",
			req:  Request{Content: "...", Speaker: dialogue.MysteryName, Type: dialogue.TypeCharacter},
			want: []string{"into English", "unidentified character"},
			notWant: []string{
				"spoken by " + dialogue.MysteryName,
				"Speaker profile",
			},
		},
		{
			name: "choice",
			req:  Request{Content: "はい\nいいえ", Type: dialogue.TypeChoice, Choices: []string{"はい", "いいえ"}},
			want: []string{"player choices", "one choice per line"},
		},
		{
			name: "system",
			req:  Request{Content: "セーブしました", Type: dialogue.TypeSystem},
			want: []string{"system message"},
		},
		{
			name: "narration",
			req:  Request{Content: "風が吹いている。", Type: dialogue.TypeNormal},
			want: []string{"narration"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			system, user := Prompt(tt.req)
			if user != tt.req.Content {
				t.Errorf("user = %q, want %q", user, tt.req.Content)
			}
			for _, w := range tt.want {
				if !strings.Contains(system, w) {
					t.Errorf("system prompt missing %q:\n%s", w, system)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(system, w) {
					t.Errorf("system prompt should not contain %q:\n%s", w, system)
				}
			}
		})
	}
}
