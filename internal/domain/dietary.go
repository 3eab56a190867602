package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// DietaryProfile is the restriction view of a user profile.
type DietaryProfile struct {
	Preference DietaryPreference
	Allergies  []string
}

// Restricted reports whether any restriction applies.
func (d DietaryProfile) Restricted() bool {
	return (d.Preference != DietNone && d.Preference != "") || len(d.Allergies) > 0
}

// Describe renders the restrictions for inclusion in a model prompt.
func (d DietaryProfile) Describe() string {
	var parts []string
	switch d.Preference {
	case DietVegetarian:
		parts = append(parts, "vegetarian (no meat, fish, or poultry)")
	case DietVegan:
		parts = append(parts, "vegan (no animal products including dairy, eggs, honey)")
	}
	if len(d.Allergies) > 0 {
		parts = append(parts, "allergic to: "+strings.Join(d.Allergies, ", "))
	}
	if len(parts) == 0 {
		return "No specific dietary restrictions."
	}
	return "Dietary restrictions: " + strings.Join(parts, ". ") + "."
}

// DietaryViolation is a first-class outcome, not a system error.
type DietaryViolation struct {
	ViolatingFoods []string `json:"violatingFoods"`
	Reason         string   `json:"reason"`
}

// Compliance is the result of a dietary check.
type Compliance struct {
	Compliant bool
	Violation *DietaryViolation
}

var meatKeywords = []string{
	"chicken", "beef", "pork", "lamb", "mutton", "veal", "venison", "turkey", "duck",
	"goose", "bacon", "ham", "sausage", "steak", "salami", "pepperoni", "prosciutto",
	"chorizo", "meatball", "brisket", "ribs", "jerky", "hot dog", "meat", "gelatin",
	"fish", "salmon", "tuna", "cod", "tilapia", "trout", "sardine", "anchovy", "mackerel",
	"halibut", "shrimp", "prawn", "crab", "lobster", "clam", "mussel", "oyster", "scallop",
	"squid", "calamari", "octopus", "seafood", "fish sauce",
}

var animalProductKeywords = []string{
	"milk", "cheese", "butter", "cream", "yogurt", "yoghurt", "ghee", "paneer", "whey",
	"casein", "egg", "omelette", "omelet", "mayonnaise", "mayo", "custard", "honey",
	"ice cream", "kefir", "curd", "lassi", "buttermilk",
}

// plantQualifiers turn a dairy-style keyword into a plant-based food when they
// directly precede it, e.g. "almond milk" or "peanut butter".
var plantQualifiers = map[string]bool{
	"almond": true, "soy": true, "soya": true, "oat": true, "coconut": true, "rice": true,
	"cashew": true, "peanut": true, "nut": true, "hemp": true, "pea": true, "apple": true,
	"cocoa": true, "shea": true, "sunflower": true, "tofu": true,
	// "ice cream" is matched as its own keyword.
	"ice": true,
}

// substituteQualifiers mark any animal product as a plant-based substitute,
// e.g. "vegan egg" or "plant honey".
var substituteQualifiers = map[string]bool{
	"vegan": true, "plant": true, "impossible": true, "beyond": true, "fake": true, "mock": true,
}

// dairyStyle lists the animal products with common plant-based namesakes.
var dairyStyle = map[string]bool{
	"milk": true, "cheese": true, "butter": true, "cream": true, "yogurt": true, "yoghurt": true,
	"mayonnaise": true, "mayo": true, "ice cream": true, "kefir": true, "curd": true,
}

// CheckCompliance cross-references foods against the profile's restrictions.
func CheckCompliance(p DietaryProfile, foods ...string) Compliance {
	var (
		violating []string
		reasons   []string
		seen      = map[string]bool{}
	)
	add := func(food string) {
		if !seen[food] {
			seen[food] = true
			violating = append(violating, food)
		}
	}

	var animal []string
	if p.Preference == DietVegan {
		animal = animalProductKeywords
	}
	var meat []string
	if p.Preference == DietVegetarian || p.Preference == DietVegan {
		meat = meatKeywords
	}

	dietHit := false
	for _, food := range foods {
		tokens := tokenize(food)
		for _, kw := range meat {
			if len(phraseAt(tokens, tokenize(kw))) > 0 {
				add(kw)
				dietHit = true
			}
		}
		for _, kw := range animal {
			if animalProductIn(tokens, kw) {
				add(kw)
				dietHit = true
			}
		}
	}
	if dietHit {
		switch p.Preference {
		case DietVegetarian:
			reasons = append(reasons, "A vegetarian diet excludes meat, fish, and poultry.")
		case DietVegan:
			reasons = append(reasons, "A vegan diet excludes all animal products, including dairy, eggs, and honey.")
		}
	}

	var allergens []string
	for _, allergy := range p.Allergies {
		a := strings.ToLower(strings.TrimSpace(allergy))
		if a == "" {
			continue
		}
		for _, food := range foods {
			if matchesAllergy(strings.ToLower(food), a) {
				add(a)
				allergens = append(allergens, a)
				break
			}
		}
	}
	if len(allergens) > 0 {
		reasons = append(reasons, fmt.Sprintf("You listed an allergy to %s.", strings.Join(allergens, ", ")))
	}

	if len(violating) == 0 {
		return Compliance{Compliant: true}
	}
	return Compliance{Violation: &DietaryViolation{
		ViolatingFoods: violating,
		Reason:         strings.Join(reasons, " "),
	}}
}

func matchesAllergy(food, allergy string) bool {
	if strings.Contains(food, allergy) {
		return true
	}
	if singular := singularize(allergy); singular != allergy {
		return strings.Contains(food, singular)
	}
	return false
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for i, f := range fields {
		fields[i] = singularize(f)
	}
	return fields
}

// singularize folds simple English plurals so "eggs" matches "egg".
func singularize(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 4 && (strings.HasSuffix(w, "shes") || strings.HasSuffix(w, "ches")):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}

// phraseAt returns every index at which phrase starts in tokens.
func phraseAt(tokens, phrase []string) []int {
	if len(phrase) == 0 {
		return nil
	}
	var at []int
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, p := range phrase {
			if tokens[i+j] != p {
				continue outer
			}
		}
		at = append(at, i)
	}
	return at
}

// animalProductIn reports whether kw occurs in tokens other than as a
// plant-based product such as "oat milk" or "vegan cheese".
func animalProductIn(tokens []string, kw string) bool {
	for _, i := range phraseAt(tokens, tokenize(kw)) {
		if i == 0 {
			return true
		}
		prev := tokens[i-1]
		if substituteQualifiers[prev] || (dairyStyle[kw] && plantQualifiers[prev]) {
			continue
		}
		return true
	}
	return false
}
