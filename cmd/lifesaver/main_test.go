package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/lifesaver/internal/profile"
	"github.com/hrygo/lifesaver/plugin/ai/protocol"
	"github.com/hrygo/lifesaver/plugin/ai/reasoner"
	"github.com/hrygo/lifesaver/store"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LIFESAVER_LLM_API_KEY", "")
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDemoScenarios(t *testing.T) {
	for name := range demoScripts {
		t.Run(name, func(t *testing.T) {
			out, err := runCmd(t, "demo", "--scenario", name, "--llm-provider", "rule")
			require.NoError(t, err)
			assert.Contains(t, out, "["+string(store.StatusResolved)+"]")
			assert.Contains(t, out, "# Incident Report")
		})
	}

	t.Run("cardiac report lists medication", func(t *testing.T) {
		out, err := runCmd(t, "demo", "--llm-provider", "rule")
		require.NoError(t, err)
		assert.Contains(t, out, "- aspirin")
	})

	t.Run("unknown scenario", func(t *testing.T) {
		_, err := runCmd(t, "demo", "--scenario", "burn")
		assert.Error(t, err)
	})
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestNewReasoner(t *testing.T) {
	rule := newReasoner(&profile.Profile{LLMProvider: "rule", LLMAPIKey: "sk"})
	assert.IsType(t, reasoner.RuleReasoner{}, rule)

	llm := newReasoner(&profile.Profile{LLMProvider: "openai", LLMAPIKey: "sk", LLMModel: "gpt-4o-mini"})
	assert.IsType(t, &reasoner.Resilient{}, llm)
}

func TestNewLookup(t *testing.T) {
	assert.IsType(t, &protocol.Builtin{}, newLookup(&profile.Profile{}))
	assert.IsType(t, &protocol.Cached{}, newLookup(&profile.Profile{ProtocolsFile: "protocols.yaml"}))
}
