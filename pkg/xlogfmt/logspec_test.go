package xlogfmt

import "testing"

func TestParseLogSpec(t *testing.T) {
	tests := []struct {
		text string
		want LogSpec
	}{
		{"stats", LogSpec{Query: "stats", Period: DefaultPeriod}},
		{"stats/10s", LogSpec{Query: "stats", Period: 10}},
		{"stats[rf]/10s", LogSpec{Query: "stats", Opts: []string{"rf"}, Period: 10}},
		{"stats[rf,cell]/0.5s", LogSpec{Query: "stats", Opts: []string{"rf", "cell"}, Period: 0.5}},
	}
	for _, tt := range tests {
		got, err := ParseLogSpec(tt.text)
		if err != nil {
			t.Errorf("ParseLogSpec(%q): %v", tt.text, err)
			continue
		}
		if got.Query != tt.want.Query || got.Period != tt.want.Period || len(got.Opts) != len(tt.want.Opts) {
			t.Errorf("ParseLogSpec(%q) = %+v, want %+v", tt.text, got, tt.want)
		}
	}
}

func TestParseLogSpecRejectsBadInput(t *testing.T) {
	for _, text := range []string{"stats/10", "stats[rf/10s", "bad query/10s"} {
		if _, err := ParseLogSpec(text); err == nil {
			t.Errorf("ParseLogSpec(%q): expected error, got nil", text)
		}
	}
}

func TestNormalizeInsertsSyncAndConfigGet(t *testing.T) {
	specv := []LogSpec{{Query: "stats", Period: 10}}
	out, syncPeriod, err := Normalize(specv)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if syncPeriod != 100 {
		t.Errorf("syncPeriod = %v, want 100 (10x longest period)", syncPeriod)
	}

	var haveSync, haveConfigGet bool
	for _, l := range out {
		if l.Query == "meta.sync" {
			haveSync = true
			if l.Period != 100 {
				t.Errorf("meta.sync period = %v, want 100", l.Period)
			}
		}
		if l.Query == "config_get" {
			haveConfigGet = true
			if l.Period != 100 {
				t.Errorf("config_get period = %v, want 100", l.Period)
			}
		}
	}
	if !haveSync || !haveConfigGet {
		t.Errorf("Normalize(%v) = %v, missing meta.sync/config_get", specv, out)
	}
}

func TestNormalizeRejectsExcessiveLOSWindow(t *testing.T) {
	specv := []LogSpec{
		{Query: "meta.sync", Period: 60},
		{Query: "stats", Period: 0.01}, // 6000 entries per sync period
	}
	if _, _, err := Normalize(specv); err == nil {
		t.Fatal("Normalize: expected LOS_window rejection, got nil")
	}
}

func TestNormalizeIsIdempotentOnExplicitSync(t *testing.T) {
	specv := []LogSpec{
		{Query: "meta.sync", Period: 30},
		{Query: "stats", Period: 10},
	}
	out, syncPeriod, err := Normalize(specv)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if syncPeriod != 30 {
		t.Errorf("syncPeriod = %v, want the caller's explicit 30", syncPeriod)
	}
	n := 0
	for _, l := range out {
		if l.Query == "meta.sync" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("got %d meta.sync entries, want exactly 1", n)
	}
}
