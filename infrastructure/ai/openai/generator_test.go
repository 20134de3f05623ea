package openai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclass/domain/core/entities"
	pkgerrors "dclass/pkg/errors"
)

type fakeCompletions struct {
	content string
	err     error
	calls   []openai.ChatCompletionNewParams
}

func (f *fakeCompletions) New(_ context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.calls = append(f.calls, body)
	if f.err != nil {
		return nil, f.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: f.content},
			FinishReason: "stop",
		}},
	}, nil
}

const libraryDiagram = `{
  "classes": [
    {"name": "Library", "attributes": [{"name": "name", "type": "string", "visibility": "private"}], "methods": []},
    {"name": "Book", "attributes": [{"name": "isbn", "type": "string", "visibility": ""}],
     "methods": [{"name": "lend", "parameters": "to: Member", "returnType": "", "visibility": "public"}]}
  ],
  "notes": ["Books are lent for two weeks"],
  "relations": [
    {"source": "library", "target": "Book", "type": "composition", "sourceMultiplicity": "1", "targetMultiplicity": "*", "label": ""},
    {"source": "Book", "target": "Author", "type": "association", "sourceMultiplicity": "", "targetMultiplicity": "", "label": ""}
  ]
}`

func TestGenerateFromPrompt(t *testing.T) {
	// Arrange
	fake := &fakeCompletions{content: libraryDiagram}
	gen := NewGeneratorWithClient(fake, Config{Model: "gpt-test"}, nil)

	// Act
	model, err := gen.GenerateFromPrompt(context.Background(), "create a library system")

	// Assert
	require.NoError(t, err)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, openai.ChatModel("gpt-test"), fake.calls[0].Model)
	assert.NotNil(t, fake.calls[0].ResponseFormat.OfJSONSchema)

	require.Equal(t, 3, model.NodeCount())
	assert.Equal(t, "Library", model.Nodes[0].Data.Label)
	assert.Equal(t, entities.NodeKindNote, model.Nodes[2].Kind)
	assert.Equal(t, "Books are lent for two weeks", model.Nodes[2].Data.Content)

	book := model.Nodes[1]
	require.Len(t, book.Data.Attributes, 1)
	assert.Equal(t, entities.VisibilityPrivate, book.Data.Attributes[0].Visibility)
	require.Len(t, book.Data.Methods, 1)
	assert.Equal(t, entities.DefaultReturnType, book.Data.Methods[0].ReturnType)

	require.Equal(t, 1, model.EdgeCount(), "relation to an unknown class is skipped")
	edge := model.Edges[0]
	assert.Equal(t, model.Nodes[0].ID, edge.Source)
	assert.Equal(t, book.ID, edge.Target)
	assert.Equal(t, entities.RelationComposition, edge.RelationType)
	assert.Equal(t, "*", edge.Data["targetMultiplicity"])
	assert.Empty(t, model.DanglingEdges())
}

func TestGenerateFromPrompt_Failures(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeCompletions
		isError func(error) bool
	}{
		{"api failure", &fakeCompletions{err: errors.New("401")}, pkgerrors.IsRemote},
		{"empty content", &fakeCompletions{content: ""}, pkgerrors.IsGeneration},
		{"no classes", &fakeCompletions{content: `{"classes":[],"notes":[],"relations":[]}`}, pkgerrors.IsGeneration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewGeneratorWithClient(tt.fake, Config{}, nil)
			_, err := gen.GenerateFromPrompt(context.Background(), "create x")
			require.Error(t, err)
			assert.True(t, tt.isError(err), "unexpected error type: %v", err)
		})
	}
}

func TestGenerateFromImage(t *testing.T) {
	fake := &fakeCompletions{content: "```json\n" + libraryDiagram + "\n```"}
	gen := NewGeneratorWithClient(fake, Config{Model: "small", VisionModel: "vision"}, nil)

	model, err := gen.GenerateFromImage(context.Background(), "data:image/png;base64,iVBORw==", "uml.png")
	require.NoError(t, err)
	assert.Equal(t, 3, model.NodeCount())
	assert.Equal(t, openai.ChatModel("vision"), fake.calls[0].Model)

	_, err = gen.GenerateFromImage(context.Background(), "https://example.com/a.png", "a.png")
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestConverse(t *testing.T) {
	fake := &fakeCompletions{content: "  A composition owns its parts.\n"}
	gen := NewGeneratorWithClient(fake, Config{}, nil)

	text, err := gen.Converse(context.Background(), "what is a composition?")
	require.NoError(t, err)
	assert.Equal(t, "A composition owns its parts.", text)
	assert.Nil(t, fake.calls[0].ResponseFormat.OfJSONSchema)
}

func TestDecodeLenient(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"plain", `{"classes":[{"name":"A","attributes":[],"methods":[]}]}`},
		{"string encoded", `"{\"classes\":[{\"name\":\"A\",\"attributes\":[],\"methods\":[]}]}"`},
		{"trailing comma", `{"classes":[{"name":"A","attributes":[],"methods":[],}],}`},
		{"fenced", "```\n{\"classes\":[{\"name\":\"A\"}]}\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out generatedDiagram
			require.NoError(t, decodeLenient(tt.input, &out))
			require.Len(t, out.Classes, 1)
			assert.Equal(t, "A", out.Classes[0].Name)
		})
	}

	var out generatedDiagram
	assert.Error(t, decodeLenient("   ", &out))
}

func TestSchemaIsStrict(t *testing.T) {
	raw, err := json.Marshal(schemaFor(generatedDiagram{}))
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Equal(t, false, schema["additionalProperties"])
	assert.ElementsMatch(t, []any{"classes", "notes", "relations"}, schema["required"])
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.GenerateFromPrompt(context.Background(), "create a")
	assert.True(t, pkgerrors.IsGeneration(err))
	_, err = Disabled{}.Converse(context.Background(), "hi")
	assert.True(t, pkgerrors.IsGeneration(err))
}
