package security

import (
	"testing"
)

var _ TextSanitizerService = (*textSanitizer)(nil)

// TestSanitize_StripsAllMarkup は全てのHTMLタグが除去されることを検証する。
func TestSanitize_StripsAllMarkup(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンテキストはそのまま",
			input: "山田太郎",
			want:  "山田太郎",
		},
		{
			name:  "boldタグの中身だけ残る",
			input: "<b>太郎</b>",
			want:  "太郎",
		},
		{
			name:  "scriptタグは中身ごと除去される",
			input: `<script>alert("xss")</script>`,
			want:  "",
		},
		{
			name:  "イベント属性付きタグが除去される",
			input: `<img src=x onerror=alert(1)>花子`,
			want:  "花子",
		},
		{
			name:  "ネストしたタグも全て除去される",
			input: "<div><p>表示名<span>です</span></p></div>",
			want:  "表示名です",
		},
		{
			name:  "aタグのhrefも除去される",
			input: `<a href="javascript:alert(1)">リンク</a>`,
			want:  "リンク",
		},
		{
			name:  "前後の空白が除去される",
			input: "  太郎  ",
			want:  "太郎",
		},
		{
			name:  "空文字列は空文字列",
			input: "",
			want:  "",
		},
		{
			name:  "タグのみの入力は空文字列",
			input: "<p></p><br>",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	input := `<b>太郎</b> <script>x</script>さん`
	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(first)

	if first != second {
		t.Errorf("sanitize is not idempotent: first = %q, second = %q", first, second)
	}
}
