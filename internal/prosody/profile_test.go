package prosody

import "testing"

func TestResolve_None(t *testing.T) {
	if _, ok := Resolve(StyleNone); ok {
		t.Fatal("StyleNone should not resolve to a profile")
	}
	if _, ok := Resolve(Style(42)); ok {
		t.Fatal("unknown style should not resolve to a profile")
	}
}

func TestResolve_Table(t *testing.T) {
	tests := []struct {
		style   Style
		rate    string
		contour string
		volume  string
	}{
		{
			StyleStress, "1.15",
			"(0%,+3st)(10%,+3st)(20%,+3st)(30%,+10st)(40%,+4st)(50%,+4st)(60%,+4st)(70%,+9st)(80%,+7st)(90%,+10st)(100%,+11st)",
			"",
		},
		{
			StyleAnger, "0.82",
			"(0%,-2st)(10%,-2st)(20%,-2st)(30%,-2st)(40%,-2st)(50%,-2st)(60%,-3st)(70%,-3st)(80%,-3st)(90%,-4st)(100%,-4st)",
			"",
		},
		{
			StyleConfusion, "0.85",
			"(0%,-1st)(10%,-1st)(20%,-1st)(30%,-1st)(40%,-1st)(50%,-1st)(60%,-2st)(70%,+3st)(80%,+3st)(90%,+10st)(100%,+6st)",
			"0.0",
		},
		{StyleCustom1, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.style.String(), func(t *testing.T) {
			p, ok := Resolve(tt.style)
			if !ok {
				t.Fatalf("expected profile for %s", tt.style)
			}
			if p.Rate != tt.rate {
				t.Errorf("rate = %q, want %q", p.Rate, tt.rate)
			}
			if got := p.ContourString(); got != tt.contour {
				t.Errorf("contour = %q, want %q", got, tt.contour)
			}
			if p.Volume != tt.volume {
				t.Errorf("volume = %q, want %q", p.Volume, tt.volume)
			}
		})
	}
}

func TestResolve_ContourSampledEvery10Percent(t *testing.T) {
	for _, s := range []Style{StyleStress, StyleAnger, StyleConfusion} {
		p, _ := Resolve(s)
		if len(p.Contour) != 11 {
			t.Fatalf("%s: expected 11 contour points, got %d", s, len(p.Contour))
		}
		for i, pt := range p.Contour {
			if pt.Percent != i*10 {
				t.Errorf("%s: point %d at %d%%, want %d%%", s, i, pt.Percent, i*10)
			}
		}
	}
}

func TestResolve_ReturnsCopy(t *testing.T) {
	p, _ := Resolve(StyleAnger)
	p.Contour[0].Semitones = 99

	again, _ := Resolve(StyleAnger)
	if again.Contour[0].Semitones != -2 {
		t.Fatalf("profile table was mutated through a resolved copy: %v", again.Contour[0])
	}
}

func TestProfile_RateMultiplier(t *testing.T) {
	tests := []struct {
		style Style
		want  float64
	}{
		{StyleStress, 1.15},
		{StyleAnger, 0.82},
		{StyleConfusion, 0.85},
		{StyleCustom1, 1.0},
	}
	for _, tt := range tests {
		p, _ := Resolve(tt.style)
		if got := p.RateMultiplier(); got != tt.want {
			t.Errorf("%s: RateMultiplier() = %v, want %v", tt.style, got, tt.want)
		}
	}
}

func TestParseStyle(t *testing.T) {
	tests := []struct {
		in   string
		want Style
		ok   bool
	}{
		{"stress", StyleStress, true},
		{"ANGER", StyleAnger, true},
		{"Confusion", StyleConfusion, true},
		{" custom1 ", StyleCustom1, true},
		{"none", StyleNone, true},
		{"bogus", StyleNone, false},
		{"", StyleNone, false},
	}
	for _, tt := range tests {
		got, ok := ParseStyle(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseStyle(%q) = (%s, %v), want (%s, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStyle_String(t *testing.T) {
	if StyleStress.String() != "STRESS" || StyleNone.String() != "NONE" {
		t.Errorf("unexpected names: %s %s", StyleStress, StyleNone)
	}
	if Style(-1).String() != "UNKNOWN" {
		t.Errorf("negative style should be UNKNOWN, got %s", Style(-1))
	}
}
