package worker

import "testing"

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "# Report\n\nBody.", "# Report\n\nBody."},
		{"markdown fence", "```markdown\n# Report\n```", "# Report"},
		{"bare fence", "```\n# Report\n```", "# Report"},
		{"uppercase tag", "```Markdown\n# Report\n```", "# Report"},
		{"surrounding whitespace", "  \n```md\n# Report\n```\n  ", "# Report"},
		{"crlf", "```markdown\r\n# Report\r\n```", "# Report"},
		{"inner fences preserved", "```markdown\nUse ```code``` blocks.\n```", "Use ```code``` blocks."},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripCodeFence(tc.in); got != tc.want {
				t.Errorf("StripCodeFence(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestStripCodeFenceIdempotent(t *testing.T) {
	in := "```markdown\n# Report\n```"
	once := StripCodeFence(in)
	if twice := StripCodeFence(once); twice != once {
		t.Errorf("Second strip changed output: %q -> %q", once, twice)
	}
}
