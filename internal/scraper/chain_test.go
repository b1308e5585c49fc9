package scraper

import "testing"

func TestChainResolveOrder(t *testing.T) {
	chain := Chain{"#first", "#second", "#third"}

	tests := []struct {
		name    string
		visible map[string]bool
		wantSel string
		wantOK  bool
	}{
		{
			name:    "first candidate wins",
			visible: map[string]bool{"#first": true, "#third": true},
			wantSel: "#first",
			wantOK:  true,
		},
		{
			name:    "falls through to third",
			visible: map[string]bool{"#third": true},
			wantSel: "#third",
			wantOK:  true,
		},
		{
			name:    "nothing visible",
			visible: map[string]bool{},
			wantSel: "",
			wantOK:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, ok := chain.Resolve(func(sel string) bool { return tt.visible[sel] })
			if sel != tt.wantSel || ok != tt.wantOK {
				t.Errorf("Resolve() = (%q, %v), want (%q, %v)", sel, ok, tt.wantSel, tt.wantOK)
			}
		})
	}
}

func TestChainResolveProbesInDeclaredOrder(t *testing.T) {
	chain := Chain{"#a", "#b", "#c"}
	var probed []string
	chain.Resolve(func(sel string) bool {
		probed = append(probed, sel)
		return sel == "#b"
	})
	if len(probed) != 2 || probed[0] != "#a" || probed[1] != "#b" {
		t.Errorf("probe order = %v, want [#a #b] and stop on first hit", probed)
	}
}

func TestDefaultChainsNonEmpty(t *testing.T) {
	chains := DefaultChains()
	if len(chains.Input) == 0 || len(chains.Submit) == 0 || len(chains.Result) == 0 {
		t.Fatalf("DefaultChains() has an empty chain: %+v", chains)
	}
	if chains.Input[0] != "#receipt_number" {
		t.Errorf("Input[0] = %q, want the primary receipt selector first", chains.Input[0])
	}
}
