package cisia

import (
	"testing"

	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		code exams.Code
		want string
	}{
		{
			name: "tolc italian",
			cfg:  Config{PageLanguage: "italiano"},
			code: exams.TOLCI,
			want: "https://testcisia.it/calendario.php?tolc=ingegneria&l=it",
		},
		{
			name: "tolc english",
			cfg:  Config{PageLanguage: "inglese"},
			code: exams.TOLCE,
			want: "https://testcisia.it/calendario.php?tolc=economia&l=gb",
		},
		{
			name: "cents carries page language",
			cfg:  Config{PageLanguage: "italiano"},
			code: exams.CEnTS,
			want: "https://testcisia.it/calendario.php?tolc=cents&lingua=italiano&l=it",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFetcher(tt.cfg)
			if got := f.buildURL(tt.code); got != tt.want {
				t.Errorf("buildURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTargetFormat(t *testing.T) {
	if got := exams.TOLCI.Info().Prefix + "@UNI"; got != "TOLC@UNI" {
		t.Errorf("target = %q", got)
	}
	if got := exams.CEnTS.Info().Prefix + "@HOME"; got != "CENT@HOME" {
		t.Errorf("target = %q", got)
	}
}

func TestHasSeatCount(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"12", true},
		{"---", false},
		{"", false},
		{"  ", false},
		{" 3 ", true},
	}
	for _, tt := range tests {
		if got := hasSeatCount(tt.in); got != tt.want {
			t.Errorf("hasSeatCount(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultTimeout(t *testing.T) {
	f := NewFetcher(Config{})
	if f.cfg.Timeout != defaultTimeout {
		t.Errorf("timeout = %s, want %s", f.cfg.Timeout, defaultTimeout)
	}
}
