package ui

import "testing"

func TestThemeNames(t *testing.T) {
	names := ThemeNames()
	if len(names) != 3 {
		t.Fatalf("ThemeNames() returned %d names, want 3", len(names))
	}
	for _, name := range names {
		if GetTheme(name).Name != name {
			t.Fatalf("GetTheme(%q).Name = %q", name, GetTheme(name).Name)
		}
	}
}

func TestNextTheme(t *testing.T) {
	if got := NextTheme("Nightfox"); got != "Kanagawa" {
		t.Fatalf("NextTheme(Nightfox) = %q, want Kanagawa", got)
	}
	if got := NextTheme("Slate"); got != "Nightfox" {
		t.Fatalf("NextTheme(Slate) = %q, want Nightfox", got)
	}
	if got := NextTheme("unknown"); got != "Nightfox" {
		t.Fatalf("NextTheme(unknown) = %q, want Nightfox", got)
	}
}

func TestGetTheme_UnknownFallsBack(t *testing.T) {
	if got := GetTheme("Dracula").Name; got != "Nightfox" {
		t.Fatalf("GetTheme(Dracula) = %q, want Nightfox", got)
	}
}

func TestCardTitleCyclesAccents(t *testing.T) {
	th := slateTheme()
	styles := th.Styles()
	n := len(th.CardAccents)
	first := styles.CardTitle(0).GetForeground()
	wrapped := styles.CardTitle(n).GetForeground()
	if first != wrapped {
		t.Fatalf("CardTitle(%d) = %v, want %v", n, wrapped, first)
	}
	if first == styles.CardTitle(1).GetForeground() {
		t.Fatal("adjacent cards share an accent")
	}
}
