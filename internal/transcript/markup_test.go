package transcript

import "testing"

func TestCleanTextMarkup(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "vocal sound kept as bracket",
			input:    `<VocalSound Description="laugh"/> yeah`,
			expected: "[laugh] yeah",
		},
		{
			name:     "non vocal sound kept as bracket",
			input:    `<NonVocalSound Description="door slam"/> what was that`,
			expected: "[door slam] what was that",
		},
		{
			name:     "pause becomes ellipsis",
			input:    `so <Pause/> anyway`,
			expected: "so ... anyway",
		},
		{
			name:     "emphasis unwrapped",
			input:    `that is <Emphasis>really</Emphasis> important`,
			expected: "that is really important",
		},
		{
			name:     "uncertain gets question marker",
			input:    `we could use <Uncertain>bagels</Uncertain> here`,
			expected: "we could use (bagels?) here",
		},
		{
			name:     "unintelligible wins over uncertain unwrap",
			input:    `he said <Uncertain>@@</Uncertain> something`,
			expected: "he said (unintelligible) something",
		},
		{
			name:     "foreign word unwrapped",
			input:    `she said <Foreign Language="Spanish">hola</Foreign> to everyone`,
			expected: "she said hola to everyone",
		},
		{
			name:     "pronounce unwrapped",
			input:    `the <Pronounce Of="SQL">sequel</Pronounce> database`,
			expected: "the sequel database",
		},
		{
			name:     "comment removed",
			input:    `next slide <Comment Description="refers to projector"/> please`,
			expected: "next slide please",
		},
		{
			name:     "residual tags stripped",
			input:    `hello <SomeUnknownTag attr="x"/> world`,
			expected: "hello world",
		},
		{
			name:     "entities decoded",
			input:    `tom &amp; jerry &gt; others`,
			expected: "tom & jerry > others",
		},
		{
			name:     "whitespace normalized",
			input:    "  so \n\t  many   spaces  ",
			expected: "so many spaces",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanText(tt.input)
			if got != tt.expected {
				t.Errorf("CleanText(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCleanTextAcronyms(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"O_K", "OK"},
		{"that's O_K with me", "that's OK with me"},
		{"my P_D_A is broken", "my PDA is broken"},
		{"watching T_V now", "watching TV now"},
		// 四字母缩写：三字母规则从第二个字母开始匹配
		{"A_B_C_D", "A_BCD"},
	}

	for _, tt := range tests {
		got := CleanText(tt.input)
		if got != tt.expected {
			t.Errorf("CleanText(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestCleanTextIdempotent(t *testing.T) {
	inputs := []string{
		`<VocalSound Description="laugh"/> so that's O_K <Pause/> on the P_D_A`,
		`<Uncertain>@@</Uncertain> and <Uncertain>maybe</Uncertain>`,
		`tom &amp; jerry <Comment Description="aside"/> again`,
	}

	for _, input := range inputs {
		once := CleanText(input)
		twice := CleanText(once)
		if once != twice {
			t.Errorf("CleanText not idempotent: first %q, second %q", once, twice)
		}
	}
}
