package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/pantrychat/v1/internal/application/classifier"
	"github.com/pantrychat/v1/internal/application/extractor"
	"github.com/pantrychat/v1/internal/application/generalchat"
	"github.com/pantrychat/v1/internal/application/search"
	domain "github.com/pantrychat/v1/internal/domain/chat"
	"github.com/pantrychat/v1/internal/infrastructure/config"
	"github.com/pantrychat/v1/internal/ports/outbound"
	apperrors "github.com/pantrychat/v1/pkg/errors"
)

// scriptedCompletion routes single-turn and history calls to test-supplied
// functions and counts invocations.
type scriptedCompletion struct {
	completeFn    func(systemPrompt, userPrompt string) (string, error)
	historyFn     func(history []outbound.ChatMessage) (string, error)
	completeCalls int
	historyCalls  int
}

func (s *scriptedCompletion) Complete(ctx context.Context, systemPrompt, userPrompt string, images []string) (string, error) {
	s.completeCalls++
	if s.completeFn == nil {
		return "", errors.New("no single-turn reply scripted")
	}
	return s.completeFn(systemPrompt, userPrompt)
}

func (s *scriptedCompletion) CompleteWithHistory(ctx context.Context, systemPrompt string, history []outbound.ChatMessage) (string, error) {
	s.historyCalls++
	if s.historyFn == nil {
		return "", errors.New("no history reply scripted")
	}
	return s.historyFn(history)
}

// fakeRepo is an in-memory ConversationRepository.
type fakeRepo struct {
	convOrder []uuid.UUID
	convs     map[uuid.UUID]*domain.Conversation
	messages  map[uuid.UUID][]*domain.Message
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		convs:    map[uuid.UUID]*domain.Conversation{},
		messages: map[uuid.UUID][]*domain.Message{},
	}
}

func (f *fakeRepo) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	f.convs[c.ID()] = c
	f.convOrder = append(f.convOrder, c.ID())
	return nil
}

func (f *fakeRepo) UpdateConversation(ctx context.Context, c *domain.Conversation) error {
	f.convs[c.ID()] = c
	return nil
}

func (f *fakeRepo) FindLatestBySession(ctx context.Context, userID uuid.UUID, sessionID string) (*domain.Conversation, error) {
	for i := len(f.convOrder) - 1; i >= 0; i-- {
		c := f.convs[f.convOrder[i]]
		if c != nil && c.UserID() == userID && c.SessionID() == sessionID {
			return c, nil
		}
	}
	return nil, domain.ErrConversationMissing
}

func (f *fakeRepo) FindConversation(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Conversation, error) {
	c, ok := f.convs[conversationID]
	if !ok || c.UserID() != userID {
		return nil, domain.ErrConversationMissing
	}
	return c, nil
}

func (f *fakeRepo) ListConversations(ctx context.Context, userID uuid.UUID) ([]outbound.ConversationSummary, error) {
	var out []outbound.ConversationSummary
	for _, id := range f.convOrder {
		c := f.convs[id]
		if c == nil || c.UserID() != userID {
			continue
		}
		out = append(out, outbound.ConversationSummary{
			ID:           c.ID(),
			SessionID:    c.SessionID(),
			CreatedAt:    c.CreatedAt(),
			UpdatedAt:    c.UpdatedAt(),
			MessageCount: len(f.messages[c.ID()]),
		})
	}
	return out, nil
}

func (f *fakeRepo) DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error {
	delete(f.convs, conversationID)
	delete(f.messages, conversationID)
	return nil
}

func (f *fakeRepo) DeleteAllConversations(ctx context.Context, userID uuid.UUID) error {
	for id, c := range f.convs {
		if c.UserID() == userID {
			delete(f.convs, id)
			delete(f.messages, id)
		}
	}
	return nil
}

func (f *fakeRepo) CreateMessage(ctx context.Context, m *domain.Message) error {
	f.messages[m.ConversationID()] = append(f.messages[m.ConversationID()], m)
	return nil
}

func (f *fakeRepo) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Message, error) {
	msgs := f.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (f *fakeRepo) RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]*domain.Message, error) {
	msgs := f.messages[conversationID]
	start := len(msgs) - n
	if start < 0 {
		start = 0
	}
	window := msgs[start:]
	out := make([]*domain.Message, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		out = append(out, window[i])
	}
	return out, nil
}

type stubWorkflow struct {
	enabled bool
	reply   outbound.WorkflowReply
	err     error
	events  []outbound.WorkflowEvent
}

func (s *stubWorkflow) Dispatch(ctx context.Context, event outbound.WorkflowEvent) (outbound.WorkflowReply, error) {
	s.events = append(s.events, event)
	return s.reply, s.err
}

func (s *stubWorkflow) Enabled() bool { return s.enabled }

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vector, s.err
}

type stubSearchRepo struct {
	matches []outbound.LexicalMatch
}

func (s *stubSearchRepo) VectorCandidates(ctx context.Context, userID uuid.UUID) ([]outbound.RecipeEmbedding, error) {
	return nil, outbound.ErrBranchUnavailable
}

func (s *stubSearchRepo) LexicalSearch(ctx context.Context, userID uuid.UUID, query string, limit int) ([]outbound.LexicalMatch, error) {
	return s.matches, nil
}

type RouterTestSuite struct {
	suite.Suite
	userID uuid.UUID
}

func (suite *RouterTestSuite) SetupTest() {
	suite.userID = uuid.New()
}

type routerFixture struct {
	service    *Service
	repo       *fakeRepo
	completion *scriptedCompletion
	workflow   *stubWorkflow
}

func (suite *RouterTestSuite) newRouter(completion *scriptedCompletion, workflow *stubWorkflow, searchRepo outbound.RecipeSearchRepository) *routerFixture {
	log := zaptest.NewLogger(suite.T())
	repo := newFakeRepo()

	if searchRepo == nil {
		searchRepo = &stubSearchRepo{}
	}
	engine := search.NewEngine(&stubEmbedder{vector: []float32{1, 0}}, searchRepo, config.RetrievalConfig{
		SimilarityThreshold: 0.5,
		VectorWeight:        0.7,
		LexicalWeight:       0.3,
		DefaultLimit:        10,
	}, log)

	service := NewService(
		repo,
		classifier.NewClassifier(completion, log),
		extractor.NewExtractor(completion, log),
		generalchat.NewHandler(completion, repo, log),
		engine,
		workflow,
		log,
	)
	return &routerFixture{service: service, repo: repo, completion: completion, workflow: workflow}
}

func (suite *RouterTestSuite) TestValidation() {
	suite.Run("EmptyMessageAndImages_ShouldReturnBadRequest", func() {
		fx := suite.newRouter(&scriptedCompletion{}, &stubWorkflow{}, nil)

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:  suite.userID,
			Message: "   ",
		})

		assert.Nil(suite.T(), envelope)
		assert.Equal(suite.T(), apperrors.CodeBadRequest, apperrors.GetCode(err))
	})

	suite.Run("NilUserID_ShouldReturnUnauthorized", func() {
		fx := suite.newRouter(&scriptedCompletion{}, &stubWorkflow{}, nil)

		_, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{Message: "hi"})

		assert.Equal(suite.T(), apperrors.CodeUnauthorized, apperrors.GetCode(err))
	})

	suite.Run("UnknownManualIntent_ShouldReturnBadRequest", func() {
		fx := suite.newRouter(&scriptedCompletion{}, &stubWorkflow{}, nil)

		_, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "hi",
			ManualIntent: "meal_plan",
		})

		assert.Equal(suite.T(), apperrors.CodeBadRequest, apperrors.GetCode(err))
	})
}

func (suite *RouterTestSuite) TestIntentResolution() {
	suite.Run("ManualIntent_ShouldBypassClassifier", func() {
		completion := &scriptedCompletion{
			historyFn: func(history []outbound.ChatMessage) (string, error) {
				return "Happy to chat!", nil
			},
		}
		fx := suite.newRouter(completion, &stubWorkflow{}, nil)

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "hello there",
			SessionID:    "s1",
			ManualIntent: "general_chat",
		})

		require.NoError(suite.T(), err)
		// The classifier's single-turn call never happened.
		assert.Zero(suite.T(), completion.completeCalls)
		assert.Equal(suite.T(), "manual", envelope.IntentMetadata.Source)
		assert.Equal(suite.T(), "general_chat", envelope.IntentMetadata.Intent)
		assert.Equal(suite.T(), 1.0, envelope.IntentMetadata.Confidence)
	})

	suite.Run("ClassifierFailure_ShouldDegradeToGeneralChatAtHalfConfidence", func() {
		completion := &scriptedCompletion{
			completeFn: func(systemPrompt, userPrompt string) (string, error) {
				return "", errors.New("provider down")
			},
			historyFn: func(history []outbound.ChatMessage) (string, error) {
				return "Still here to help.", nil
			},
		}
		fx := suite.newRouter(completion, &stubWorkflow{}, nil)

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:    suite.userID,
			Message:   "hello",
			SessionID: "s1",
		})

		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), "general_chat", envelope.IntentMetadata.Intent)
		assert.Equal(suite.T(), 0.5, envelope.IntentMetadata.Confidence)
		assert.Equal(suite.T(), "fallback", envelope.IntentMetadata.Source)
		assert.Equal(suite.T(), "Still here to help.", envelope.Response.Content)
	})

	suite.Run("ManualIntentOnExistingConversation_ShouldOverwritePin", func() {
		completion := &scriptedCompletion{
			historyFn: func(history []outbound.ChatMessage) (string, error) { return "ok", nil },
		}
		fx := suite.newRouter(completion, &stubWorkflow{}, nil)

		first, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "hello",
			SessionID:    "s1",
			ManualIntent: "general_chat",
		})
		require.NoError(suite.T(), err)

		_, err = fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "now extract",
			SessionID:    "s1",
			ManualIntent: "general_chat",
		})
		require.NoError(suite.T(), err)

		conversation := fx.repo.convs[first.ConversationID]
		require.NotNil(suite.T(), conversation.PinnedIntent())
		assert.Equal(suite.T(), domain.IntentGeneralChat, *conversation.PinnedIntent())
	})
}

func (suite *RouterTestSuite) TestConversationResolution() {
	suite.Run("SameSession_ShouldReuseConversation", func() {
		completion := &scriptedCompletion{
			historyFn: func(history []outbound.ChatMessage) (string, error) { return "ok", nil },
		}
		fx := suite.newRouter(completion, &stubWorkflow{}, nil)
		input := HandleMessageInput{
			UserID:       suite.userID,
			Message:      "hello",
			SessionID:    "shared",
			ManualIntent: "general_chat",
		}

		first, err := fx.service.HandleMessage(context.Background(), input)
		require.NoError(suite.T(), err)
		second, err := fx.service.HandleMessage(context.Background(), input)
		require.NoError(suite.T(), err)

		assert.Equal(suite.T(), first.ConversationID, second.ConversationID)
		assert.Len(suite.T(), fx.repo.convOrder, 1)
	})

	suite.Run("MultipleConversationsForSession_ShouldUseLastCreated", func() {
		completion := &scriptedCompletion{
			historyFn: func(history []outbound.ChatMessage) (string, error) { return "ok", nil },
		}
		fx := suite.newRouter(completion, &stubWorkflow{}, nil)

		older, err := domain.NewConversation(suite.userID, "dup")
		require.NoError(suite.T(), err)
		newer, err := domain.NewConversation(suite.userID, "dup")
		require.NoError(suite.T(), err)
		require.NoError(suite.T(), fx.repo.CreateConversation(context.Background(), older))
		require.NoError(suite.T(), fx.repo.CreateConversation(context.Background(), newer))

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "hi",
			SessionID:    "dup",
			ManualIntent: "general_chat",
		})

		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), newer.ID(), envelope.ConversationID)
	})

	suite.Run("EmptySessionID_ShouldGenerateOne", func() {
		completion := &scriptedCompletion{
			historyFn: func(history []outbound.ChatMessage) (string, error) { return "ok", nil },
		}
		fx := suite.newRouter(completion, &stubWorkflow{}, nil)

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "hi",
			ManualIntent: "general_chat",
		})

		require.NoError(suite.T(), err)
		assert.NotEmpty(suite.T(), envelope.SessionID)
	})
}

func (suite *RouterTestSuite) TestExtractionDispatch() {
	suite.Run("ValidRecipe_ShouldReturnRecipeKindMessage", func() {
		completion := &scriptedCompletion{
			completeFn: func(systemPrompt, userPrompt string) (string, error) {
				return `{"recipe":{"title":"Toast","ingredients":[{"name":"bread","amount":2,"unit":"slices"}],"instructions":["Toast it."]}}`, nil
			},
		}
		fx := suite.newRouter(completion, &stubWorkflow{}, nil)

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "Add this recipe: Toast. Ingredients: bread. Instructions: toast it.",
			SessionID:    "s1",
			ManualIntent: "recipe_extraction",
		})

		require.NoError(suite.T(), err)
		require.NotNil(suite.T(), envelope.Recipe)
		assert.Equal(suite.T(), "Toast", envelope.Recipe.Title)
		assert.Contains(suite.T(), envelope.Response.Content, "Toast")

		messages := fx.repo.messages[envelope.ConversationID]
		require.Len(suite.T(), messages, 2)
		assert.Equal(suite.T(), domain.MessageKindRecipe, messages[1].Kind())
	})

	suite.Run("InvalidRecipe_ShouldReturnReadableFailureNotRecipe", func() {
		completion := &scriptedCompletion{
			completeFn: func(systemPrompt, userPrompt string) (string, error) {
				return `{"recipe":{"title":"Mystery","ingredients":[],"instructions":[]}}`, nil
			},
		}
		fx := suite.newRouter(completion, &stubWorkflow{}, nil)

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "save this",
			SessionID:    "s1",
			ManualIntent: "recipe_extraction",
		})

		require.NoError(suite.T(), err)
		assert.Nil(suite.T(), envelope.Recipe)
		assert.Contains(suite.T(), envelope.Response.Content, "ingredients")
	})

	suite.Run("ProviderFailure_ShouldPersistApologyMessage", func() {
		completion := &scriptedCompletion{
			completeFn: func(systemPrompt, userPrompt string) (string, error) {
				return "", errors.New("timeout")
			},
		}
		fx := suite.newRouter(completion, &stubWorkflow{}, nil)

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "save this recipe please",
			SessionID:    "s1",
			ManualIntent: "recipe_extraction",
		})

		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), extractionApology, envelope.Response.Content)

		messages := fx.repo.messages[envelope.ConversationID]
		require.Len(suite.T(), messages, 2)
		assert.Equal(suite.T(), domain.RoleUser, messages[0].Role())
		assert.Equal(suite.T(), domain.RoleAssistant, messages[1].Role())
	})
}

func (suite *RouterTestSuite) TestSearchDispatch() {
	suite.Run("WebhookEnabled_ShouldDelegateToWorkflowEngine", func() {
		workflow := &stubWorkflow{
			enabled: true,
			reply:   outbound.WorkflowReply{Text: "Found 2 pasta recipes.", Parsed: true},
		}
		fx := suite.newRouter(&scriptedCompletion{}, workflow, nil)

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "find my pasta recipes",
			SessionID:    "s1",
			ManualIntent: "rag_search",
		})

		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), "Found 2 pasta recipes.", envelope.Response.Content)
		require.Len(suite.T(), workflow.events, 1)
		assert.Equal(suite.T(), "rag_search", workflow.events[0].Data.Intent)
		assert.Equal(suite.T(), "s1", workflow.events[0].Data.SessionID)
	})

	suite.Run("WebhookFailure_ShouldPersistApologyWithSuccessEnvelope", func() {
		workflow := &stubWorkflow{enabled: true, err: errors.New("context deadline exceeded")}
		fx := suite.newRouter(&scriptedCompletion{}, workflow, nil)

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "find my soups",
			SessionID:    "s1",
			ManualIntent: "rag_search",
		})

		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), searchApology, envelope.Response.Content)

		messages := fx.repo.messages[envelope.ConversationID]
		require.Len(suite.T(), messages, 2)
		assert.Equal(suite.T(), "webhook_unavailable", messages[1].Metadata()["fallback"])
	})

	suite.Run("WebhookDisabled_ShouldSearchInProcess", func() {
		searchRepo := &stubSearchRepo{matches: []outbound.LexicalMatch{
			{Row: outbound.RecipeRow{ID: uuid.New(), Title: "Lentil Soup"}, Rank: 0.8},
		}}
		fx := suite.newRouter(&scriptedCompletion{}, &stubWorkflow{enabled: false}, searchRepo)

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "lentil",
			SessionID:    "s1",
			ManualIntent: "rag_search",
		})

		require.NoError(suite.T(), err)
		assert.Contains(suite.T(), envelope.Response.Content, "Lentil Soup")
	})
}

func (suite *RouterTestSuite) TestHistory() {
	suite.Run("RepeatedReads_ShouldReturnIdenticalOrderedContent", func() {
		completion := &scriptedCompletion{
			historyFn: func(history []outbound.ChatMessage) (string, error) { return "ok", nil },
		}
		fx := suite.newRouter(completion, &stubWorkflow{}, nil)

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "hello",
			SessionID:    "s1",
			ManualIntent: "general_chat",
		})
		require.NoError(suite.T(), err)

		first, _, err := fx.service.History(context.Background(), suite.userID, &envelope.ConversationID, 50)
		require.NoError(suite.T(), err)
		second, _, err := fx.service.History(context.Background(), suite.userID, &envelope.ConversationID, 50)
		require.NoError(suite.T(), err)

		assert.Equal(suite.T(), first, second)
		require.Len(suite.T(), first, 2)
		assert.Equal(suite.T(), "user", first[0].Sender)
		assert.Equal(suite.T(), "assistant", first[1].Sender)
	})

	suite.Run("OtherUsersConversation_ShouldReturnNotFound", func() {
		completion := &scriptedCompletion{
			historyFn: func(history []outbound.ChatMessage) (string, error) { return "ok", nil },
		}
		fx := suite.newRouter(completion, &stubWorkflow{}, nil)

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "hello",
			SessionID:    "s1",
			ManualIntent: "general_chat",
		})
		require.NoError(suite.T(), err)

		_, _, err = fx.service.History(context.Background(), uuid.New(), &envelope.ConversationID, 50)

		assert.Equal(suite.T(), apperrors.CodeNotFound, apperrors.GetCode(err))
	})

	suite.Run("DeleteOne_ShouldRemoveOnlyThatConversation", func() {
		completion := &scriptedCompletion{
			historyFn: func(history []outbound.ChatMessage) (string, error) { return "ok", nil },
		}
		fx := suite.newRouter(completion, &stubWorkflow{}, nil)

		first, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID: suite.userID, Message: "one", SessionID: "s1", ManualIntent: "general_chat",
		})
		require.NoError(suite.T(), err)
		second, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID: suite.userID, Message: "two", SessionID: "s2", ManualIntent: "general_chat",
		})
		require.NoError(suite.T(), err)

		require.NoError(suite.T(), fx.service.DeleteHistory(context.Background(), suite.userID, &first.ConversationID))

		assert.NotContains(suite.T(), fx.repo.convs, first.ConversationID)
		assert.Contains(suite.T(), fx.repo.convs, second.ConversationID)
	})
}

func (suite *RouterTestSuite) TestRoutingMetadata() {
	suite.Run("AssistantMessage_ShouldCarryRoutingMetadata", func() {
		completion := &scriptedCompletion{
			historyFn: func(history []outbound.ChatMessage) (string, error) { return "ok", nil },
		}
		fx := suite.newRouter(completion, &stubWorkflow{}, nil)

		envelope, err := fx.service.HandleMessage(context.Background(), HandleMessageInput{
			UserID:       suite.userID,
			Message:      "hello",
			SessionID:    "s1",
			ManualIntent: "general_chat",
		})
		require.NoError(suite.T(), err)

		messages := fx.repo.messages[envelope.ConversationID]
		require.Len(suite.T(), messages, 2)
		meta := messages[1].Metadata()
		assert.Equal(suite.T(), "general_chat", meta["intent"])
		assert.Equal(suite.T(), "manual", meta["intent_source"])
		assert.Contains(suite.T(), meta, "duration_ms")
	})
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
