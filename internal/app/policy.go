package app

// Component names used in the failure policy table and in log fields.
const (
	componentClarification = "clarification"
	componentParser        = "parser"
	componentNutrition     = "nutrition"
	componentSuggestions   = "suggestions"
)

// failOpen records, per component, whether an upstream failure is replaced
// by a safe default (true) or reported to the caller (false).
//
//	clarification: assume no clarification is needed
//	nutrition:     substitute the zero estimate for the item
//	parser:        report the failure, never invent items
//	suggestions:   report the failure, never invent suggestions
var failOpen = map[string]bool{
	componentClarification: true,
	componentNutrition:     true,
	componentParser:        false,
	componentSuggestions:   false,
}

// FailsOpen reports the failure policy for a component.
func FailsOpen(component string) bool {
	return failOpen[component]
}
