package fim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	response string
	err      error
	lastUser string
	calls    int
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.lastUser = user
	return f.response, f.err
}

func (f *fakeClient) CompleteWithMedia(ctx context.Context, system, user, mime string, data []byte) (string, error) {
	f.calls++
	return f.response, f.err
}

func TestClassifyEmptyInput(t *testing.T) {
	c := NewClassifier(&fakeClient{}, nil)
	_, err := c.Classify(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestClassifyResolvesSociallyWithoutModelCall(t *testing.T) {
	client := &fakeClient{}
	c := NewClassifier(client, nil)

	tests := []struct {
		text string
		want Intent
	}{
		{"hola", IntentSteer},
		{"buenos días", IntentSteer},
		{"gracias", IntentSteer},
		{"¿cómo va el clima?", IntentSteer},
		{"...", IntentClarify},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			records, err := c.Classify(context.Background(), tt.text)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, tt.want, records[0].Intent)
			assert.NotEmpty(t, records[0].Reply)
		})
	}
	assert.Zero(t, client.calls)
}

func TestClassifySingleWrite(t *testing.T) {
	client := &fakeClient{response: `[
		{"intent": "WRITE_LOG", "confidence": 0.95,
		 "entities": {"amount": 150, "concept": "tacos", "tx_type": "expense"}}
	]`}
	c := NewClassifier(client, nil)

	records, err := c.Classify(context.Background(), "gasté 150 en tacos")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, IntentWriteLog, records[0].Intent)
	assert.Equal(t, 150.0, records[0].Entities.Amount)
	assert.Equal(t, "tacos", records[0].Entities.Concept)
}

func TestClassifyMultiWritePreservesOrder(t *testing.T) {
	client := &fakeClient{response: "```json\n" + `[
		{"intent": "WRITE_LOG", "confidence": 0.9, "entities": {"amount": 300, "concept": "tacos"}},
		{"intent": "WRITE_LOG", "confidence": 0.9, "entities": {"amount": 150, "concept": "uber"}}
	]` + "\n```"}
	c := NewClassifier(client, nil)

	records, err := c.Classify(context.Background(), "300 de tacos y 150 de uber")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "tacos", records[0].Entities.Concept)
	assert.Equal(t, "uber", records[1].Entities.Concept)
}

func TestClassifyDemotesIncompleteWrite(t *testing.T) {
	client := &fakeClient{response: `[
		{"intent": "WRITE_LOG", "confidence": 0.8, "entities": {"concept": "algo"}}
	]`}
	c := NewClassifier(client, nil)

	records, err := c.Classify(context.Background(), "gasté en algo")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, IntentClarify, records[0].Intent)
	assert.NotEmpty(t, records[0].Reply)
}

func TestClassifyAntExpenseNeverForcedToDespensa(t *testing.T) {
	client := &fakeClient{response: `[
		{"intent": "WRITE_LOG", "confidence": 0.9,
		 "entities": {"amount": 80, "concept": "café", "merchant": "Oxxo", "category": "Despensa"}}
	]`}
	c := NewClassifier(client, nil)

	records, err := c.Classify(context.Background(), "80 de café en el oxxo")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Café/Snacks", records[0].Entities.Category)
}

func TestClassifyCoercesUnknownCategory(t *testing.T) {
	client := &fakeClient{response: `[
		{"intent": "WRITE_LOG", "confidence": 0.9,
		 "entities": {"amount": 900, "concept": "zapatos", "category": "Moda"}}
	]`}
	c := NewClassifier(client, nil)

	records, err := c.Classify(context.Background(), "900 de zapatos")
	require.NoError(t, err)
	assert.Equal(t, FallbackCategory, records[0].Entities.Category)
}

func TestClassifyMalformedReplyFallsBackToClarify(t *testing.T) {
	client := &fakeClient{response: "no puedo ayudar con eso"}
	c := NewClassifier(client, nil)

	records, err := c.Classify(context.Background(), "gasté 200 en el súper")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, IntentClarify, records[0].Intent)
}

func TestClassifyUnknownIntentDiscriminator(t *testing.T) {
	client := &fakeClient{response: `[{"intent": "DELETE_ALL", "confidence": 0.9}]`}
	c := NewClassifier(client, nil)

	records, err := c.Classify(context.Background(), "quita el último movimiento")
	require.NoError(t, err)
	assert.Equal(t, IntentClarify, records[0].Intent)
}

func TestClassifyMetaCommandSteersLocally(t *testing.T) {
	client := &fakeClient{}
	c := NewClassifier(client, nil)

	for _, text := range []string{"borra mis datos", "elimina mi cuenta por favor", "borra todo"} {
		records, err := c.Classify(context.Background(), text)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, IntentSteer, records[0].Intent, text)
		assert.Equal(t, SubIntentMeta, records[0].SubIntent, text)
		assert.NotEmpty(t, records[0].Reply)
	}
	// System commands resolve without spending a model call.
	assert.Zero(t, client.calls)
}

func TestClassifySocialSteerCarriesSubIntent(t *testing.T) {
	c := NewClassifier(&fakeClient{}, nil)

	records, err := c.Classify(context.Background(), "hola")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, IntentSteer, records[0].Intent)
	assert.Equal(t, SubIntentSocial, records[0].SubIntent)
}

func TestClassifySubIntentOnlyRidesOnSteer(t *testing.T) {
	client := &fakeClient{response: `[
		{"intent": "WRITE_LOG", "sub_intent": "META", "confidence": 0.9,
		 "entities": {"amount": 150, "concept": "tacos"}}
	]`}
	c := NewClassifier(client, nil)

	records, err := c.Classify(context.Background(), "gasté 150 en tacos")
	require.NoError(t, err)
	assert.Equal(t, IntentWriteLog, records[0].Intent)
	assert.Empty(t, records[0].SubIntent)
}

func TestClassifyAntLimitConfigurable(t *testing.T) {
	response := `[
		{"intent": "WRITE_LOG", "confidence": 0.9,
		 "entities": {"amount": 250, "concept": "café", "merchant": "Starbucks", "category": "Despensa"}}
	]`

	// Under the default limit a 250-peso purchase is not an ant expense.
	c := NewClassifier(&fakeClient{response: response}, nil)
	records, err := c.Classify(context.Background(), "250 de café")
	require.NoError(t, err)
	assert.Equal(t, "Despensa", records[0].Entities.Category)

	// A raised limit pulls it out of Despensa.
	c = NewClassifier(&fakeClient{response: response}, nil, WithAntExpenseLimit(300))
	records, err = c.Classify(context.Background(), "250 de café")
	require.NoError(t, err)
	assert.Equal(t, "Café/Snacks", records[0].Entities.Category)
}

func TestClassifyReadQuery(t *testing.T) {
	client := &fakeClient{response: `[
		{"intent": "READ_QUERY", "confidence": 0.92,
		 "entities": {"period": "hoy", "question": "cuánto gasté hoy"}}
	]`}
	c := NewClassifier(client, nil)

	records, err := c.Classify(context.Background(), "¿cuánto gasté hoy?")
	require.NoError(t, err)
	assert.Equal(t, IntentReadQuery, records[0].Intent)
	assert.Equal(t, "hoy", records[0].Entities.Period)
}
