package recipes

import (
	"strings"

	"fridgeio/internal/model"
)

// minPantryMatches is the inclusion threshold for pantry-driven search: a
// recipe stays in the results once this many grocery/ingredient-line pairs
// match.
const minPantryMatches = 2

// MatchCount counts grocery/ingredient-line pairs where the grocery name
// occurs in the line, case-insensitively. Each pair counts once, so one
// grocery appearing in three lines contributes three.
func MatchCount(groceryNames []string, ingredientLines []string) int {
	count := 0
	for _, name := range groceryNames {
		needle := strings.ToLower(name)
		if needle == "" {
			continue
		}
		for _, line := range ingredientLines {
			if strings.Contains(strings.ToLower(line), needle) {
				count++
			}
		}
	}
	return count
}

// MatchesPantry reports whether a recipe overlaps the given groceries enough
// to be worth suggesting.
func MatchesPantry(groceryNames []string, recipe model.RecipeResult) bool {
	return MatchCount(groceryNames, recipe.IngredientLines) >= minPantryMatches
}
