package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKindAndCause(t *testing.T) {
	err := New(ErrPersistence, Origin{Component: "ml", Operation: "save", Input: "/tmp/model.json"}, fs.ErrPermission)

	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, fs.ErrPermission))
	assert.False(t, errors.Is(err, ErrTraining))
}

func TestError_MessageCarriesOrigin(t *testing.T) {
	err := Newf(ErrTraining, Origin{Component: "search", Operation: "fit", Input: "decision_tree criterion=gini"}, "singular matrix")

	msg := err.Error()
	assert.Contains(t, msg, "search.fit")
	assert.Contains(t, msg, "decision_tree criterion=gini")
	assert.Contains(t, msg, "training failed")
	assert.Contains(t, msg, "singular matrix")
}

func TestError_NilCause(t *testing.T) {
	err := New(ErrNoViableModel, Origin{Component: "search"}, nil)

	assert.Equal(t, "search: no viable model", err.Error())
	assert.True(t, errors.Is(err, ErrNoViableModel))
}

func TestOriginOf_ThroughWrapping(t *testing.T) {
	inner := New(ErrOverfitUnderfit, Origin{Component: "gate", Operation: "check", Input: "gap=0.49"}, nil)
	wrapped := fmt.Errorf("run trainer: %w", inner)

	origin, ok := OriginOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, "gate", origin.Component)
	assert.Equal(t, "gap=0.49", origin.Input)

	_, ok = OriginOf(errors.New("plain"))
	assert.False(t, ok)
}
