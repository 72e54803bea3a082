package device

import (
	"errors"
	"testing"
)

func TestParseHeight(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    int
		wantErr bool
	}{
		{
			name: "exact firmware output",
			text: "ESP32 Desk Controller\nCurrent Height: 735 mm\n",
			want: 735,
		},
		{
			name: "flexible whitespace",
			text: "Current Height:735mm",
			want: 735,
		},
		{
			name: "lower case height",
			text: "current height: 1020 mm",
			want: 1020,
		},
		{
			name: "html with spread out words",
			text: "<html>Current   height:   812   mm</html>",
			want: 812,
		},
		{
			name: "words split by tags",
			text: "<p>Current</p><p>Height:</p><b>901</b><i>mm</i>",
			want: 901,
		},
		{
			name: "generic fallback",
			text: "Desk Height: 640 mm",
			want: 640,
		},
		{
			name: "exact pattern preferred over fallback",
			text: "Target Height: 900 mm<br>Current Height: 700 mm",
			want: 700,
		},
		{
			name: "entities decoded",
			text: "Current&nbsp;Height:&nbsp;777&nbsp;mm",
			want: 777,
		},
		{
			name:    "no height",
			text:    "ESP32 Desk Controller\nMotor: idle",
			wantErr: true,
		},
		{
			name:    "height without unit",
			text:    "Current Height: 700",
			wantErr: true,
		},
		{
			name:    "overflowing number",
			text:    "Current Height: 99999999999999999999999 mm",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeight(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrParseFailure) {
					t.Fatalf("ParseHeight() error = %v, want ErrParseFailure", err)
				}
				if IsNetworkError(err) {
					t.Fatalf("parse failure must not be a network error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHeight() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseHeight() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCustomHeightPatterns(t *testing.T) {
	p, err := NewStatusParser([]HeightPattern{
		{Expr: `H=(\d+)`},
	})
	if err != nil {
		t.Fatalf("NewStatusParser() error: %v", err)
	}
	got, err := p.ParseHeight("state=idle H=1111")
	if err != nil || got != 1111 {
		t.Fatalf("ParseHeight() = %d, %v; want 1111", got, err)
	}

	if _, err := NewStatusParser([]HeightPattern{{Expr: `Height`}}); err == nil {
		t.Fatalf("expected error for pattern without capture group")
	}
	if _, err := NewStatusParser([]HeightPattern{{Expr: `(`}}); err == nil {
		t.Fatalf("expected error for invalid pattern")
	}
}

func TestParseLimits(t *testing.T) {
	l, err := ParseLimits("Minimum: 575\nMaximum: 1185")
	if err != nil {
		t.Fatalf("ParseLimits() error: %v", err)
	}
	if l != (Limits{Min: 575, Max: 1185}) {
		t.Errorf("ParseLimits() = %+v", l)
	}

	l, err = ParseLimits("<div>Minimum:<b>600</b></div><div>Maximum:<b>1200</b></div>")
	if err != nil {
		t.Fatalf("ParseLimits() html error: %v", err)
	}
	if l != (Limits{Min: 600, Max: 1200}) {
		t.Errorf("ParseLimits() html = %+v", l)
	}

	_, err = ParseLimits("Minimum: 575\n")
	if !IsParseFailure(err) {
		t.Errorf("missing maximum: got %v, want parse failure", err)
	}

	_, err = ParseLimits("Maximum: 1185\n")
	if !IsParseFailure(err) {
		t.Errorf("missing minimum: got %v, want parse failure", err)
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<html><body>\n  <h1>ESP32 Desk Controller</h1>\n<p>a &amp; b</p></body></html>")
	want := "ESP32 Desk Controller a & b"
	if got != want {
		t.Errorf("StripHTML() = %q, want %q", got, want)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{CommandUp, "up"},
		{GotoCommand(2), "goto2"},
		{HeightCommand(850), "height850"},
		{SetPresetCommand(0, 700), "set0%20700"},
		{SetMinCommand(575), "setmin575"},
		{SetMaxCommand(1185), "setmax1185"},
		{CommandResetWiFi, "resetwifi"},
	}
	for _, tt := range tests {
		if got := EncodeCommand(tt.cmd); got != tt.want {
			t.Errorf("EncodeCommand(%q) = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}
