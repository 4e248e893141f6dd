package app

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestCreateApp_ValidGraph(t *testing.T) {
	t.Skip("graph validation resolves the Telegram and postgres providers, run with a full environment")

	require.NoError(t, fx.ValidateApp(CreateApp()))
}
