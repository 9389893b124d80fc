package flows

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/credits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFirstContactRegistersUser(t *testing.T) {
	h := newHarness(t)

	h.text("hola")
	h.requireSaw("Bienvenido a Worky")
	h.requireAt(FlowTerms, 0)

	h.text(LabelDecline)
	h.requireSaw(termsDeclined)
	h.requireAt(FlowTerms, 0)

	h.text(LabelAccept)
	h.requireAt(FlowEmail, 0)

	h.text("no-es-un-correo")
	h.requireSaw(emailInvalid)
	sess := h.session()
	require.NotNil(t, sess)
	assert.Equal(t, FlowEmail, sess.Flow)
	assert.Equal(t, 1, sess.Retries)

	h.sender.reset()
	h.dispatch(conversation.Event{Body: "Ana@Uni.edu.pe", Name: "Ana", Type: conversation.EventText})
	h.requireSaw("Soy tu asistente virtual")
	h.requireAt(FlowWelcome, 1)

	user, err := h.store.GetUser(context.Background(), testUser)
	require.NoError(t, err)
	assert.True(t, user.TermsAccepted)
	assert.Equal(t, "ana@uni.edu.pe", user.Email)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, 1, h.balance(), "welcome credits")
}

func TestEmailCancelEndsOnboarding(t *testing.T) {
	h := newHarness(t)

	h.text("hola")
	h.text(LabelAccept)
	h.text("Cancelar")

	h.requireSaw("Registro cancelado")
	assert.Nil(t, h.session())
}

func TestKeywordResetsToMenu(t *testing.T) {
	h := newHarness(t)
	h.register(1)

	h.text("hola")
	h.text(LabelReviewCV)
	h.requireAt(FlowCV, 1)

	h.sender.reset()
	h.text("MENU")
	h.requireSaw("Soy tu asistente virtual")
	h.requireAt(FlowWelcome, 1)
}

func TestMenuFallbackKeepsStep(t *testing.T) {
	h := newHarness(t)
	h.register(0)

	h.text("hola")
	h.text("quiero algo")

	h.requireSaw("No pude entender tu respuesta")
	sess := h.session()
	require.NotNil(t, sess)
	assert.Equal(t, FlowWelcome, sess.Flow)
	assert.Equal(t, 1, sess.Step)
	assert.Equal(t, 1, sess.Retries)
}

func TestUnregisteredSessionRedirectsToTerms(t *testing.T) {
	h := newHarness(t)

	state, err := json.Marshal(cvState{Role: "Analista"})
	require.NoError(t, err)
	require.NoError(t, h.store.SaveSession(context.Background(), &conversation.Session{
		UserID: testUser,
		Flow:   FlowCV,
		Step:   2,
		State:  state,
	}))

	h.text("aquí va mi cv")
	h.requireSaw("Bienvenido a Worky")
	h.requireAt(FlowTerms, 0)
}

func TestDeadEndsReturnHome(t *testing.T) {
	h := newHarness(t)
	h.register(0)

	require.NoError(t, h.store.SaveSession(context.Background(), &conversation.Session{UserID: testUser, Flow: FlowThanks}))
	h.text("lo que sea")
	h.requireAt(FlowWelcome, 1)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)

	h := newHarness(t)
	_, err = New(Deps{
		Users:    h.store,
		Analysis: h.analysis,
		Media:    h.media,
		Ledger:   credits.NewLedger(h.store, false, zap.NewNop()),
		Payments: h.payments,
		Plans:    credits.Catalog{{ID: "x", Name: "Roto", Credits: 0, Price: 1}},
	})
	require.Error(t, err, "invalid catalog")
}
