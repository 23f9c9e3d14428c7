package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suiftly/sealctl/internal/enum"
)

func TestMockModeDisabledByDefault(t *testing.T) {
	m := NewMockMode()
	require.False(t, m.Enabled())
	_, ok := applyFaultInjection(context.Background(), m)
	require.False(t, ok)
}

func TestMockModeScenarioIsConsumedOnce(t *testing.T) {
	m := NewMockMode()
	m.Enable()
	m.SetScenario(ScenarioForceFail)

	res, ok := applyFaultInjection(context.Background(), m)
	require.True(t, ok)
	require.False(t, res.Success)
	require.Equal(t, enum.ErrCardDeclined, res.ErrorCode)

	_, ok = applyFaultInjection(context.Background(), m)
	require.False(t, ok, "scenario must not re-fire after being consumed")
}

func TestMockModeRequiresActionCarriesHostedURL(t *testing.T) {
	m := NewMockMode()
	m.Enable()
	m.SetScenario(ScenarioForceRequiresAction)

	res, ok := applyFaultInjection(context.Background(), m)
	require.True(t, ok)
	require.Equal(t, enum.ErrRequiresAction, res.ErrorCode)
	require.NotEmpty(t, res.HostedInvoiceURL)
}
