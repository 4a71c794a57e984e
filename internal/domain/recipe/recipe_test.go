package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecipe() *Recipe {
	return &Recipe{
		Title:       "Toast",
		Description: "Simple breakfast",
		Ingredients: []Ingredient{
			{Name: "bread", Amount: 2, Unit: "slices"},
		},
		Instructions: []string{"Toast it."},
		Difficulty:   DifficultyEasy,
	}
}

func TestRecipeValidate(t *testing.T) {
	t.Run("CompleteRecipe_ShouldPass", func(t *testing.T) {
		assert.NoError(t, validRecipe().Validate())
	})

	t.Run("MissingTitle_ShouldFail", func(t *testing.T) {
		r := validRecipe()
		r.Title = "   "

		err := r.Validate()

		require.Error(t, err)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "title", vErr.Field)
	})

	t.Run("EmptyIngredients_ShouldFail", func(t *testing.T) {
		r := validRecipe()
		r.Ingredients = nil

		err := r.Validate()

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "ingredients", vErr.Field)
	})

	t.Run("UnnamedIngredient_ShouldFail", func(t *testing.T) {
		r := validRecipe()
		r.Ingredients = append(r.Ingredients, Ingredient{Amount: 1, Unit: "cup"})

		err := r.Validate()

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "ingredients", vErr.Field)
		assert.Contains(t, vErr.Reason, "entry 2")
	})

	t.Run("EmptyInstructions_ShouldFail", func(t *testing.T) {
		r := validRecipe()
		r.Instructions = nil

		err := r.Validate()

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "instructions", vErr.Field)
	})

	t.Run("UnknownDifficulty_ShouldFail", func(t *testing.T) {
		r := validRecipe()
		r.Difficulty = Difficulty("expert")

		err := r.Validate()

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "difficulty", vErr.Field)
	})

	t.Run("OptionalFieldsAbsent_ShouldPass", func(t *testing.T) {
		r := validRecipe()
		r.Description = ""
		r.Difficulty = ""
		r.PrepTime = 0
		r.Servings = 0

		assert.NoError(t, r.Validate())
	})
}

func TestSearchableText(t *testing.T) {
	r := &Recipe{
		Title:       "Garlic Chicken",
		Description: "Weeknight dinner",
		Ingredients: []Ingredient{
			{Name: "Chicken thighs"},
			{Name: "Garlic"},
		},
		Instructions: []string{"Sear the chicken.", "Add garlic."},
	}

	text := r.SearchableText()

	assert.Contains(t, text, "garlic chicken")
	assert.Contains(t, text, "chicken thighs")
	assert.Contains(t, text, "sear the chicken.")
	assert.Equal(t, text, r.SearchableText())
}
