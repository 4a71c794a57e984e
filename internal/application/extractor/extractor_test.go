package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/pantrychat/v1/internal/ports/outbound"
	apperrors "github.com/pantrychat/v1/pkg/errors"
)

type stubCompletion struct {
	reply string
	err   error
}

func (s *stubCompletion) Complete(ctx context.Context, systemPrompt, userPrompt string, images []string) (string, error) {
	return s.reply, s.err
}

func (s *stubCompletion) CompleteWithHistory(ctx context.Context, systemPrompt string, history []outbound.ChatMessage) (string, error) {
	return s.reply, s.err
}

type ExtractorTestSuite struct {
	suite.Suite
}

func (suite *ExtractorTestSuite) TestExtract() {
	suite.Run("SimpleRecipe_ShouldExtractValidRecord", func() {
		// Arrange
		stub := &stubCompletion{reply: `{"recipe":{"title":"Toast","ingredients":[{"name":"bread","amount":2,"unit":"slices"}],"instructions":["Toast it."]}}`}
		e := NewExtractor(stub, zaptest.NewLogger(suite.T()))

		// Act
		rec, err := e.Extract(context.Background(), "Add this recipe: Toast. Ingredients: bread. Instructions: toast it.", nil)

		// Assert
		require.NoError(suite.T(), err)
		require.NotNil(suite.T(), rec)
		assert.Equal(suite.T(), "Toast", rec.Title)
		require.Len(suite.T(), rec.Ingredients, 1)
		assert.Equal(suite.T(), "bread", rec.Ingredients[0].Name)
		assert.Equal(suite.T(), 2.0, rec.Ingredients[0].Amount)
		assert.Len(suite.T(), rec.Instructions, 1)
	})

	suite.Run("BareRecipeObject_ShouldAlsoParse", func() {
		stub := &stubCompletion{reply: `{"title":"Toast","ingredients":[{"name":"bread","amount":1,"unit":"slice"}],"instructions":["Toast it."]}`}
		e := NewExtractor(stub, zaptest.NewLogger(suite.T()))

		rec, err := e.Extract(context.Background(), "toast", nil)

		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), "Toast", rec.Title)
	})

	suite.Run("StringAndFractionAmounts_ShouldCoerceToNumbers", func() {
		stub := &stubCompletion{reply: `{"recipe":{"title":"Dough","ingredients":[{"name":"flour","amount":"2.5","unit":"cups"},{"name":"water","amount":"1/2","unit":"cup"},{"name":"salt","amount":"1 1/2","unit":"tsp"}],"instructions":["Mix."],"prep_time":"15","servings":"4"}}`}
		e := NewExtractor(stub, zaptest.NewLogger(suite.T()))

		rec, err := e.Extract(context.Background(), "dough recipe", nil)

		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), 2.5, rec.Ingredients[0].Amount)
		assert.Equal(suite.T(), 0.5, rec.Ingredients[1].Amount)
		assert.Equal(suite.T(), 1.5, rec.Ingredients[2].Amount)
		assert.Equal(suite.T(), 15, rec.PrepTime)
		assert.Equal(suite.T(), 4, rec.Servings)
	})

	suite.Run("MissingIngredients_ShouldReturnExtractionInvalid", func() {
		stub := &stubCompletion{reply: `{"recipe":{"title":"Mystery dish","ingredients":[],"instructions":["Cook."]}}`}
		e := NewExtractor(stub, zaptest.NewLogger(suite.T()))

		rec, err := e.Extract(context.Background(), "save this", nil)

		assert.Nil(suite.T(), rec)
		require.Error(suite.T(), err)
		assert.Equal(suite.T(), apperrors.CodeExtractionInvalid, apperrors.GetCode(err))
		assert.Contains(suite.T(), apperrors.UserMessage(err), "ingredients")
	})

	suite.Run("MissingInstructions_ShouldReturnExtractionInvalid", func() {
		stub := &stubCompletion{reply: `{"recipe":{"title":"Mystery dish","ingredients":[{"name":"egg","amount":1,"unit":""}],"instructions":[]}}`}
		e := NewExtractor(stub, zaptest.NewLogger(suite.T()))

		rec, err := e.Extract(context.Background(), "save this", nil)

		assert.Nil(suite.T(), rec)
		assert.Equal(suite.T(), apperrors.CodeExtractionInvalid, apperrors.GetCode(err))
	})

	suite.Run("NonJSONReply_ShouldReturnExtractionInvalid", func() {
		stub := &stubCompletion{reply: "I'm sorry, I can't see a recipe here."}
		e := NewExtractor(stub, zaptest.NewLogger(suite.T()))

		rec, err := e.Extract(context.Background(), "gibberish", nil)

		assert.Nil(suite.T(), rec)
		assert.Equal(suite.T(), apperrors.CodeExtractionInvalid, apperrors.GetCode(err))
	})

	suite.Run("ProviderFailure_ShouldReturnExternalServiceError", func() {
		stub := &stubCompletion{err: errors.New("timeout")}
		e := NewExtractor(stub, zaptest.NewLogger(suite.T()))

		rec, err := e.Extract(context.Background(), "save this recipe", nil)

		assert.Nil(suite.T(), rec)
		assert.Equal(suite.T(), apperrors.CodeExternalServiceError, apperrors.GetCode(err))
	})
}

func TestExtractorTestSuite(t *testing.T) {
	suite.Run(t, new(ExtractorTestSuite))
}

func TestParseAmount(t *testing.T) {
	cases := map[string]float64{
		"2":       2,
		"1.5":     1.5,
		"1/2":     0.5,
		"1 1/2":   1.5,
		"3/4":     0.75,
		"":        0,
		"a pinch": 0,
	}
	for input, want := range cases {
		assert.InDelta(t, want, parseAmount(input), 1e-9, "input %q", input)
	}
}
