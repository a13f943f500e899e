package extract

import (
	"reflect"
	"strings"
	"testing"
)

func indexOf(list []string, item string) int {
	for i, v := range list {
		if strings.EqualFold(v, item) {
			return i
		}
	}
	return -1
}

func TestKeywordExtractor_DrugTokens(t *testing.T) {
	extractor := NewKeywordExtractor()

	k := extractor.Analyze("ZETRIVA and NovoLog lowered HbA1c in COPD patients", "")

	for _, want := range []string{"ZETRIVA", "NovoLog", "HbA1c", "COPD"} {
		if indexOf(k.DrugTokens, want) < 0 {
			t.Errorf("expected drug token %q, got %v", want, k.DrugTokens)
		}
	}
}

func TestKeywordExtractor_ContextTokens(t *testing.T) {
	extractor := NewKeywordExtractor()

	k := extractor.Analyze("Reduced symptoms", "the Cardiozen extended release tablets")

	// "the" is a stopword, tokens must be > 3 chars, at most 3 kept
	expected := []string{"cardiozen", "extended", "release"}
	if !reflect.DeepEqual(k.Context, expected) {
		t.Errorf("expected context %v, got %v", expected, k.Context)
	}
}

func TestKeywordExtractor_PhrasesAndSuffixes(t *testing.T) {
	extractor := NewKeywordExtractor()

	k := extractor.Analyze("Atorvastatin lowered LDL in the Heart Protection Study with adalimumab", "")

	if indexOf(k.Phrases, "Heart Protection Study") < 0 {
		t.Errorf("expected capitalized phrase, got %v", k.Phrases)
	}
	if indexOf(k.MedicalTerms, "atorvastatin") < 0 || indexOf(k.MedicalTerms, "adalimumab") < 0 {
		t.Errorf("expected suffix terms, got %v", k.MedicalTerms)
	}
}

func TestKeywordExtractor_GenericWords(t *testing.T) {
	extractor := NewKeywordExtractor()

	k := extractor.Analyze("The once-daily tablet, with fewer side-effects, improved adherence!", "")

	expected := []string{"once-daily", "tablet", "fewer", "side-effects", "improved", "adherence"}
	if !reflect.DeepEqual(k.Generic, expected) {
		t.Errorf("expected generic %v, got %v", expected, k.Generic)
	}
}

func TestKeywordExtractor_GenericCap(t *testing.T) {
	extractor := NewKeywordExtractor()

	text := "alpha bravo charlie delta echoes foxtrot golfer hotel india juliet kilos lima mikes november oscar"
	k := extractor.Analyze(text, "")

	if len(k.Generic) != maxGenericWords {
		t.Errorf("expected %d generic words, got %d: %v", maxGenericWords, len(k.Generic), k.Generic)
	}
}

func TestKeywordExtractor_NumericLiterals(t *testing.T) {
	extractor := NewKeywordExtractor()

	k := extractor.Analyze("Drug X reduced mortality by 28% (p<0.001) over 12 months in 4500 adults, 3.5 % fewer events, 7 sites", "")

	if !reflect.DeepEqual(k.Percentages, []string{"28%", "3.5 %"}) {
		t.Errorf("unexpected percentages: %v", k.Percentages)
	}
	if !reflect.DeepEqual(k.Numbers, []string{"0.001", "12", "4500"}) {
		t.Errorf("unexpected numbers (max 3): %v", k.Numbers)
	}
}

func TestKeywordExtractor_PriorityOrder(t *testing.T) {
	extractor := NewKeywordExtractor()

	all := extractor.Extract("ZETRIVA reduced exacerbations by 40% in the Lung Health Trial", "Zetriva inhaler")

	drug := indexOf(all, "ZETRIVA")
	ctx := indexOf(all, "inhaler")
	phrase := indexOf(all, "Lung Health Trial")
	generic := indexOf(all, "exacerbations")
	pct := indexOf(all, "40%")

	if !(drug < ctx && ctx < phrase && phrase < generic && generic < pct) {
		t.Errorf("priority order violated: %v", all)
	}

	// "zetriva" from the context is a case-insensitive duplicate of the drug token
	count := 0
	for _, k := range all {
		if strings.EqualFold(k, "zetriva") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected one occurrence of zetriva, got %d in %v", count, all)
	}
}

func TestKeywordExtractor_Deterministic(t *testing.T) {
	extractor := NewKeywordExtractor()
	text := "CARDIOZEN lowered systolic pressure by 12 mmHg versus placebo in a randomized trial"

	first := extractor.Extract(text, "Cardiozen")
	for i := 0; i < 5; i++ {
		if got := extractor.Extract(text, "Cardiozen"); !reflect.DeepEqual(first, got) {
			t.Fatalf("non-deterministic extraction: %v vs %v", first, got)
		}
	}
}

func TestKeywordExtractor_Empty(t *testing.T) {
	extractor := NewKeywordExtractor()

	if got := extractor.Extract("", ""); len(got) != 0 {
		t.Errorf("expected no keywords, got %v", got)
	}
}

func TestKeywords_GenericOnly(t *testing.T) {
	k := Keywords{
		Context: []string{"cardiozen"},
		Generic: []string{"cardiozen", "pressure", "systolic"},
	}

	if got := k.GenericOnly(); !reflect.DeepEqual(got, []string{"pressure", "systolic"}) {
		t.Errorf("expected product tokens removed, got %v", got)
	}
}
