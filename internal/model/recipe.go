package model

// RecipeResult is a recipe returned by the search service. It is transient;
// only favourited recipes are persisted, serialized as-is into the per-user
// favourites file. Two results are the same recipe when their names match.
type RecipeResult struct {
	Name            string   `json:"name"`
	ImageURL        string   `json:"imageURL"`
	Source          string   `json:"source"`
	URL             string   `json:"url"`
	IngredientLines []string `json:"ingredientLines"`
	Ingredients     []string `json:"ingredients"`
	Calories        int      `json:"calories"`
	Cautions        string   `json:"cautions"`
	MealTypes       string   `json:"mealTypes"`
}
